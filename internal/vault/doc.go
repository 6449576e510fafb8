// Package vault implements a client for a Vault-style secrets broker,
// built around wrapped credential delivery and short-lived database
// credentials.
//
// # Session Lifecycle
//
// A session moves strictly forward through three states:
//
//	wrapped -> unwrapped -> authorized
//
// A wrapped session holds a SecretID that is itself a single-use wrapping
// token; the first Authenticate call redeems it, then logs in with the
// recovered SecretID. An authorized session never regresses on its own:
// token expiry surfaces as permission errors on subsequent operations, and
// recovery is caller-driven via ResetWrapped (typically fed by a
// CredentialWatcher observing out-of-band credential delivery).
//
//	cfg := &vault.Config{
//	    Address:    "https://broker.example.com:8200",
//	    AuthMethod: vault.AuthMethodAppRole,
//	    AppRole: &vault.AppRoleConfig{
//	        RoleID:          "role-id",
//	        SecretID:        wrappedToken,
//	        SecretIDWrapped: true,
//	    },
//	}
//	client, err := vault.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if !client.Authenticate(ctx) {
//	    return errors.New("broker authentication failed")
//	}
//
// Authenticate is idempotent and safe for concurrent use; once authorized
// it returns true without touching the network.
//
// # Response Wrapping
//
// The wrapping client seals data into single-use envelopes and redeems
// them exactly once:
//
//	envelope, err := client.Wrapping().Wrap(ctx, map[string]string{"key": "value"}, 5*time.Minute)
//	resp, err := client.Wrapping().Unwrap(ctx, envelope.Token)
//
// Unwrapping the session's own token is rejected client-side before any
// network traffic, since that call would consume the session itself.
//
// # Secret Leases
//
// The lease client reads static (broker-rotated) and dynamic
// (broker-minted, TTL-bounded) database credentials:
//
//	lease, err := client.Leases().ReadStatic(ctx, "database", "app-ro")
//
// A missing or broker-rejected role reads as a nil lease without an
// error; only transport failures propagate.
package vault
