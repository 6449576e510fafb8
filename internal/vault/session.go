package vault

import (
	"context"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

// initialState derives the session's starting state from configuration.
func (c *brokerClient) initialState() authState {
	if c.cfg.AuthMethod == AuthMethodAppRole {
		creds := AppRoleCredentials{
			RoleID:   c.cfg.AppRole.RoleID,
			SecretID: c.cfg.AppRole.SecretID,
		}
		if c.cfg.AppRole.SecretIDWrapped {
			return stateWrapped{creds: creds}
		}
		return stateUnwrapped{creds: creds}
	}
	// Token authentication has nothing to unwrap; the authenticator
	// carries the token.
	return stateUnwrapped{}
}

// Authenticate drives the session toward the authorized state.
func (c *brokerClient) Authenticate(ctx context.Context) bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticateLocked(ctx)
}

// authenticateLocked advances the state machine. Transitions are strictly
// forward; any failure leaves the state exactly where the attempt began
// and is reported as false, never as an error.
func (c *brokerClient) authenticateLocked(ctx context.Context) bool {
	switch st := c.state.(type) {
	case stateAuthorized:
		return true

	case stateWrapped:
		resp, err := c.wrapping.Unwrap(ctx, st.creds.SecretID)
		if err != nil {
			c.metrics.RecordAuthentication("approle", statusError)
			c.logger.Debug("unwrap of wrapped secret id failed",
				observability.Error(err),
			)
			return false
		}

		secretID, ok := resp.Data["secret_id"].(string)
		if !ok || secretID == "" {
			c.metrics.RecordAuthentication("approle", statusError)
			c.logger.Debug("unwrap response carries no secret_id")
			return false
		}

		c.transition(stateUnwrapped{creds: st.creds.WithSecretID(secretID)})
		return c.authenticateLocked(ctx)

	case stateUnwrapped:
		auth, err := c.authenticatorFor(st.creds)
		if err != nil {
			c.logger.Debug("failed to build authenticator", observability.Error(err))
			return false
		}

		var secret *vaultapi.Secret
		login := func() error {
			s, err := auth.Login(ctx, c.api)
			if err != nil {
				return err
			}
			secret = s
			return nil
		}
		// Token adoption makes no network call; only real logins pass
		// through the limiter and breaker.
		if auth.Name() == "token" {
			err = login()
		} else {
			err = c.execute(ctx, "login", login)
		}
		if err != nil {
			c.metrics.RecordAuthentication(auth.Name(), statusError)
			c.logger.Debug("login failed",
				observability.String("method", auth.Name()),
				observability.Error(err),
			)
			return false
		}

		token := secret.Auth.ClientToken
		c.store.Replace(token)
		c.api.SetToken(token)
		c.tokenTTL.Store(int64(secret.Auth.LeaseDuration))
		c.metrics.SetTokenTTL(float64(secret.Auth.LeaseDuration))
		c.metrics.RecordAuthentication(auth.Name(), statusSuccess)
		c.transition(stateAuthorized{})

		c.logger.Info("authenticated with broker",
			observability.String("method", auth.Name()),
			observability.String("token", redactToken(token)),
			observability.Int("lease_duration", secret.Auth.LeaseDuration),
			observability.Int("policies", len(secret.Auth.TokenPolicies)),
			observability.Bool("renewable", secret.Auth.Renewable),
		)

		c.maybeStartRenewal()
		return true

	default:
		return false
	}
}

// authenticatorFor selects the login mechanism for the configured method.
func (c *brokerClient) authenticatorFor(creds AppRoleCredentials) (Authenticator, error) {
	if c.cfg.AuthMethod == AuthMethodToken {
		return NewTokenAuthenticator(c.cfg.Token)
	}
	return NewAppRoleAuthenticator(creds, c.cfg.AppRole.GetMountPath())
}

// transition moves the session to the next state and records it.
func (c *brokerClient) transition(next authState) {
	prev := c.state.phase()
	c.state = next
	c.metrics.RecordTransition(prev, next.phase())
	c.logger.Debug("session state transition",
		observability.String("from", prev.String()),
		observability.String("to", next.phase().String()),
	)
}

// State returns the session's current position in the login pipeline.
func (c *brokerClient) State() AuthState {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.state.phase()
}
