package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

// LeaseClient reads broker-issued database-style credentials. Both read
// paths require an authorized session and are idempotent, so they retry
// on transient broker failures.
type LeaseClient interface {
	// ReadStatic reads credentials for a static role: a fixed username
	// whose password the broker rotates on a schedule. A missing or
	// broker-rejected role reads as absence, not an error.
	ReadStatic(ctx context.Context, engineMount, roleName string) (*SecretLease, error)

	// ReadDynamic reads credentials for a dynamic role, minting an
	// ephemeral user destroyed when its lease expires. A missing or
	// broker-rejected role reads as absence, not an error.
	ReadDynamic(ctx context.Context, engineMount, roleName string) (*SecretLease, error)

	// RenewLease renews a dynamic lease by its lease id and returns the
	// new lease duration.
	RenewLease(ctx context.Context, leaseID string, increment time.Duration) (time.Duration, error)

	// RevokeLease revokes a dynamic lease, destroying its credentials.
	RevokeLease(ctx context.Context, leaseID string) error
}

// leaseClient implements LeaseClient on top of the broker client.
type leaseClient struct {
	c *brokerClient
}

func newLeaseClient(c *brokerClient) *leaseClient {
	return &leaseClient{c: c}
}

// ReadStatic reads credentials for a static role.
func (l *leaseClient) ReadStatic(ctx context.Context, engineMount, roleName string) (*SecretLease, error) {
	return l.read(ctx, "static_creds_read", engineMount, roleName,
		fmt.Sprintf("%s/static-creds/%s", engineMount, roleName), true)
}

// ReadDynamic reads credentials for a dynamic role.
func (l *leaseClient) ReadDynamic(ctx context.Context, engineMount, roleName string) (*SecretLease, error) {
	return l.read(ctx, "dynamic_creds_read", engineMount, roleName,
		fmt.Sprintf("%s/creds/%s", engineMount, roleName), false)
}

func (l *leaseClient) read(ctx context.Context, op, engineMount, roleName, path string, static bool) (*SecretLease, error) {
	if engineMount == "" || roleName == "" {
		return nil, fmt.Errorf("%s: %w: engine mount and role name are required", op, ErrInvalidArgument)
	}
	if _, ok := l.c.store.Read(); !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotLoggedIn)
	}

	var secret *vaultapi.Secret
	err := l.c.executeWithRetry(ctx, op, func() error {
		s, err := l.c.api.Logical().ReadWithContext(ctx, path)
		if err != nil {
			return classifyAPIError(op, err)
		}
		secret = s
		return nil
	})
	if err != nil {
		// Status-coded broker failures collapse to absence; the raw status
		// survives only in the debug log. Transport and cancellation
		// errors propagate unchanged.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			l.c.logger.Debug("lease read refused by broker",
				observability.String("path", path),
				observability.Int("status", apiErr.StatusCode),
				observability.Strings("errors", apiErr.Errors),
			)
			return nil, nil
		}
		return nil, err
	}

	// A 404 on a logical read surfaces as a nil secret without an error.
	if secret == nil || secret.Data == nil {
		l.c.logger.Debug("lease role not found",
			observability.String("path", path),
		)
		return nil, nil
	}

	lease := &SecretLease{
		Username: stringValue(secret.Data["username"]),
		Password: stringValue(secret.Data["password"]),
		TTL:      parseSeconds(secret.Data["ttl"]),
	}
	if lease.Username == "" || lease.Password == "" {
		return nil, fmt.Errorf("%s: %w: response carries no credentials", op, ErrDecodingFailed)
	}

	if static {
		lease.RotationPeriod = parseSeconds(secret.Data["rotation_period"])
	} else {
		lease.LeaseID = secret.LeaseID
		lease.LeaseDuration = time.Duration(secret.LeaseDuration) * time.Second
		lease.Renewable = secret.Renewable
	}

	l.c.logger.Debug("lease read",
		observability.String("path", path),
		observability.Duration("ttl", lease.TTL),
		observability.Bool("static", static),
	)

	return lease, nil
}

// RenewLease renews a dynamic lease by its lease id.
func (l *leaseClient) RenewLease(ctx context.Context, leaseID string, increment time.Duration) (time.Duration, error) {
	if leaseID == "" {
		return 0, fmt.Errorf("lease_renew: %w: lease id is required", ErrInvalidArgument)
	}
	if _, ok := l.c.store.Read(); !ok {
		return 0, fmt.Errorf("lease_renew: %w", ErrNotLoggedIn)
	}

	var secret *vaultapi.Secret
	err := l.c.execute(ctx, "lease_renew", func() error {
		s, err := l.c.api.Sys().RenewWithContext(ctx, leaseID, int(increment.Seconds()))
		if err != nil {
			return classifyAPIError("lease_renew", err)
		}
		secret = s
		return nil
	})
	if err != nil {
		return 0, err
	}
	if secret == nil {
		return 0, fmt.Errorf("lease_renew: %w: empty renewal response", ErrDecodingFailed)
	}

	return time.Duration(secret.LeaseDuration) * time.Second, nil
}

// RevokeLease revokes a dynamic lease.
func (l *leaseClient) RevokeLease(ctx context.Context, leaseID string) error {
	if leaseID == "" {
		return fmt.Errorf("lease_revoke: %w: lease id is required", ErrInvalidArgument)
	}
	if _, ok := l.c.store.Read(); !ok {
		return fmt.Errorf("lease_revoke: %w", ErrNotLoggedIn)
	}

	return l.c.execute(ctx, "lease_revoke", func() error {
		if err := l.c.api.Sys().RevokeWithContext(ctx, leaseID); err != nil {
			return classifyAPIError("lease_revoke", err)
		}
		return nil
	})
}

// Ensure implementation satisfies the interface.
var _ LeaseClient = (*leaseClient)(nil)
