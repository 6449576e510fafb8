package vault

import (
	"time"
)

// AppRoleCredentials is the RoleID/SecretID pair used for AppRole login.
// The RoleID is a long-lived identifier; the SecretID is a high-entropy,
// time-bounded value, or a single-use wrapping token when delivered wrapped.
// Values are immutable once constructed.
type AppRoleCredentials struct {
	// RoleID is the AppRole role identifier.
	RoleID string

	// SecretID is the AppRole secret identifier or a wrapping token.
	SecretID string
}

// WithSecretID returns a copy of the credentials with the SecretID replaced.
// Used after unwrapping a wrapped SecretID.
func (c AppRoleCredentials) WithSecretID(secretID string) AppRoleCredentials {
	return AppRoleCredentials{
		RoleID:   c.RoleID,
		SecretID: secretID,
	}
}

// WrappedToken is a single-use envelope issued by the broker. The inner
// payload is retrievable exactly once by unwrapping with Token as the
// bearer credential for that one call.
type WrappedToken struct {
	// Token is the single-use wrapping token.
	Token string

	// Accessor is the accessor for the wrapping token.
	Accessor string

	// TTL is how long the envelope remains redeemable.
	TTL time.Duration

	// CreationTime is when the envelope was created.
	CreationTime time.Time

	// CreationPath is the request path that produced the envelope.
	CreationPath string

	// WrappedAccessor is the accessor of the wrapped secret, when the
	// payload is itself a token.
	WrappedAccessor string
}

// WrappedTokenInfo is lookup-only metadata describing an unconsumed
// wrapping envelope, without revealing its payload.
type WrappedTokenInfo struct {
	// CreationTTL is the TTL the envelope was created with.
	CreationTTL time.Duration

	// CreationTime is when the envelope was created.
	CreationTime time.Time

	// CreationPath is the request path that produced the envelope.
	CreationPath string
}

// SecretLease holds broker-issued database-style credentials together with
// their lease metadata. A dynamic lease is destroyed by the broker after
// TTL elapses; a static lease's password is rotated by the broker on a
// schedule independent of client reads.
type SecretLease struct {
	// Username is the credential username.
	Username string

	// Password is the credential password.
	Password string

	// TTL is the remaining time the credential is valid for (dynamic) or
	// until the next rotation (static).
	TTL time.Duration

	// RotationPeriod is the broker-side rotation period for static roles.
	// Zero for dynamic leases.
	RotationPeriod time.Duration

	// LeaseID is the broker lease identifier. Empty for static roles.
	LeaseID string

	// LeaseDuration is the lease duration reported by the broker.
	LeaseDuration time.Duration

	// Renewable indicates if the lease can be renewed.
	Renewable bool
}

// redactToken returns a loggable form of a bearer token. Session and
// wrapping tokens are confidential and never logged in full.
func redactToken(token string) string {
	const visible = 4
	if len(token) <= visible {
		return "****"
	}
	return token[:visible] + "****"
}
