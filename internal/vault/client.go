package vault

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/midgard-labs/vaultlease/internal/observability"
	"github.com/midgard-labs/vaultlease/internal/retry"
)

// Client timeout constants.
const (
	// DefaultRenewalTimeout is the default timeout for token renewal operations.
	DefaultRenewalTimeout = 30 * time.Second

	// DefaultCloseTimeout is the default timeout for waiting for goroutines to stop.
	DefaultCloseTimeout = 5 * time.Second
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Client drives a credential from its initial state through to an
// authorized session and exposes the broker operations that session
// enables.
type Client interface {
	// Authenticate drives the session toward the authorized state. It is
	// idempotent: once authorized it returns true immediately without a
	// network call. A failed attempt leaves the session in the state it
	// started from, so the caller may retry.
	Authenticate(ctx context.Context) bool

	// State returns the session's current position in the login pipeline.
	State() AuthState

	// SessionToken returns the current session token, or false if the
	// session is not authorized.
	SessionToken() (string, bool)

	// Wrapping returns the response-wrapping client.
	Wrapping() WrappingClient

	// Leases returns the secret lease client.
	Leases() LeaseClient

	// RenewToken renews the current session token.
	RenewToken(ctx context.Context) error

	// Health returns broker health status.
	Health(ctx context.Context) (*HealthStatus, error)

	// Logout revokes the session token and returns the session to its
	// configured initial state.
	Logout(ctx context.Context) error

	// ResetWrapped discards any session state and restarts the pipeline
	// from freshly delivered wrapped credentials. Only approle sessions
	// have a wrapped state to restart from; on a token-method client the
	// call fails with ErrInvalidState.
	ResetWrapped(creds AppRoleCredentials) error

	// Close releases background resources held by the client.
	Close() error
}

// HealthStatus represents broker health status.
type HealthStatus struct {
	// Initialized indicates if the broker is initialized.
	Initialized bool

	// Sealed indicates if the broker is sealed.
	Sealed bool

	// Standby indicates if this is a standby node.
	Standby bool

	// Version is the broker version.
	Version string

	// ClusterName is the cluster name.
	ClusterName string
}

// brokerClient implements the Client interface.
type brokerClient struct {
	cfg     *Config
	api     *vaultapi.Client
	logger  observability.Logger
	metrics *Metrics

	store   *TokenStore
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	// Sub-clients
	wrapping *wrappingClient
	leases   *leaseClient

	// Session state; authMu serializes Authenticate so concurrent callers
	// cannot race each other into a double unwrap of a single-use token.
	authMu sync.Mutex
	state  authState

	// Token management
	tokenTTL atomic.Int64

	// Lifecycle
	mu             sync.RWMutex
	closed         bool
	renewalStarted bool
	stopCh         chan struct{}
	stoppedCh      chan struct{}
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*brokerClient)

// WithMetrics sets the metrics recorder for the client.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *brokerClient) {
		c.metrics = metrics
	}
}

// New creates a new broker client.
func New(cfg *Config, logger observability.Logger, opts ...ClientOption) (Client, error) {
	if cfg == nil {
		return nil, NewConfigurationError("", "configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address

	// Login and unwrap are single-use operations; retries belong to this
	// client's read paths, not the transport.
	apiConfig.MaxRetries = 0

	if cfg.TLS != nil {
		tlsConfig := &vaultapi.TLSConfig{
			CACert:     cfg.TLS.CACert,
			CAPath:     cfg.TLS.CAPath,
			ClientCert: cfg.TLS.ClientCert,
			ClientKey:  cfg.TLS.ClientKey,
			Insecure:   cfg.TLS.SkipVerify,
		}
		if err := apiConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, NewConfigurationErrorWithCause("tls", "failed to configure TLS", err)
		}
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, NewConfigurationErrorWithCause("address", "failed to create broker client", err)
	}

	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	client := &brokerClient{
		cfg:    cfg,
		api:    api,
		store:  NewTokenStore(),
		logger: logger.With(
			observability.String("component", "vault"),
			observability.String("session_id", uuid.NewString()),
		),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.metrics == nil {
		client.metrics = NewMetrics("vaultlease")
	}

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		client.limiter = rate.NewLimiter(
			rate.Limit(cfg.RateLimit.GetRequestsPerSecond()),
			cfg.RateLimit.GetBurst(),
		)
	}

	client.breaker = newBreaker(cfg.Breaker, client.logger)
	client.state = client.initialState()
	client.wrapping = newWrappingClient(client)
	client.leases = newLeaseClient(client)

	return client, nil
}

// SessionToken returns the current session token.
func (c *brokerClient) SessionToken() (string, bool) {
	return c.store.Read()
}

// Wrapping returns the response-wrapping client.
func (c *brokerClient) Wrapping() WrappingClient {
	return c.wrapping
}

// Leases returns the secret lease client.
func (c *brokerClient) Leases() LeaseClient {
	return c.leases
}

// RenewToken renews the current session token.
func (c *brokerClient) RenewToken(ctx context.Context) error {
	if _, ok := c.store.Read(); !ok {
		return ErrNotLoggedIn
	}

	var secret *vaultapi.Secret
	err := c.execute(ctx, "renew_token", func() error {
		s, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			return classifyAPIError("renew_token", err)
		}
		secret = s
		return nil
	})
	if err != nil {
		return err
	}

	if secret != nil && secret.Auth != nil {
		c.tokenTTL.Store(int64(secret.Auth.LeaseDuration))
		c.metrics.SetTokenTTL(float64(secret.Auth.LeaseDuration))
	}

	c.logger.Debug("session token renewed",
		observability.Int64("ttl_seconds", c.tokenTTL.Load()),
	)

	return nil
}

// Health returns broker health status.
func (c *brokerClient) Health(ctx context.Context) (*HealthStatus, error) {
	var health *vaultapi.HealthResponse
	err := c.executeWithRetry(ctx, "health", func() error {
		h, err := c.api.Sys().HealthWithContext(ctx)
		if err != nil {
			return classifyAPIError("health", err)
		}
		health = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &HealthStatus{
		Initialized: health.Initialized,
		Sealed:      health.Sealed,
		Standby:     health.Standby,
		Version:     health.Version,
		ClusterName: health.ClusterName,
	}, nil
}

// Logout revokes the session token and returns the session to its
// configured initial state. Revocation is best effort: the local session
// is cleared even when the broker call fails.
func (c *brokerClient) Logout(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if _, ok := c.store.Read(); !ok {
		return ErrNotLoggedIn
	}

	err := c.execute(ctx, "revoke_token", func() error {
		if err := c.api.Auth().Token().RevokeSelfWithContext(ctx, ""); err != nil {
			return classifyAPIError("revoke_token", err)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("session token revocation failed", observability.Error(err))
	}

	c.store.Clear()
	c.api.ClearToken()
	c.tokenTTL.Store(0)
	c.metrics.SetTokenTTL(0)
	c.transition(c.initialState())

	c.logger.Info("logged out")
	return nil
}

// ResetWrapped discards any session state and restarts the pipeline from
// freshly delivered wrapped credentials. This is the caller-driven path
// for out-of-band re-delivery of a wrapped SecretID; the session itself
// never regresses on its own.
func (c *brokerClient) ResetWrapped(creds AppRoleCredentials) error {
	if c.isClosed() {
		return ErrSessionClosed
	}
	if c.cfg.AuthMethod != AuthMethodAppRole {
		return fmt.Errorf("reset: %w: %s sessions have no wrapped state", ErrInvalidState, c.cfg.AuthMethod)
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.store.Clear()
	c.api.ClearToken()
	c.tokenTTL.Store(0)
	c.metrics.SetTokenTTL(0)
	c.transition(stateWrapped{creds: creds})
	return nil
}

// Close releases background resources held by the client.
func (c *brokerClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	renewalStarted := c.renewalStarted
	c.mu.Unlock()

	close(c.stopCh)

	if renewalStarted {
		select {
		case <-c.stoppedCh:
			c.logger.Debug("renewal goroutine stopped")
		case <-time.After(DefaultCloseTimeout):
			c.logger.Warn("timeout waiting for renewal goroutine to stop")
		}
	}

	c.logger.Info("broker client closed")
	return nil
}

// isClosed reports whether Close has been called.
func (c *brokerClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// execute runs a single broker call through the rate limiter and circuit
// breaker, recording request metrics.
func (c *brokerClient) execute(ctx context.Context, op string, fn func() error) error {
	if c.isClosed() {
		return ErrSessionClosed
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
	} else {
		err = fn()
	}

	status := statusSuccess
	if err != nil {
		status = statusError
	}
	c.metrics.RecordRequest(op, status, time.Since(start))

	return err
}

// executeWithRetry runs an idempotent broker read with retry and backoff.
// Single-use operations (login, unwrap, rewrap) must not go through here.
func (c *brokerClient) executeWithRetry(ctx context.Context, op string, fn func() error) error {
	retryCfg := &retry.Config{
		MaxRetries:     c.cfg.Retry.GetMaxRetries(),
		InitialBackoff: c.cfg.Retry.GetBackoffBase(),
		MaxBackoff:     c.cfg.Retry.GetBackoffMax(),
		JitterFactor:   retry.DefaultJitterFactor,
	}

	return retry.Do(ctx, retryCfg, func() error {
		return c.execute(ctx, op, fn)
	}, &retry.Options{
		ShouldRetry: IsRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying broker operation",
				observability.String("operation", op),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
}

// apiClone returns a copy of the API client carrying the given bearer
// token, for calls where the bearer differs from the session token.
func (c *brokerClient) apiClone(token string) (*vaultapi.Client, error) {
	clone, err := c.api.Clone()
	if err != nil {
		return nil, fmt.Errorf("vault clone: %w", err)
	}
	if c.cfg.Namespace != "" {
		clone.SetNamespace(c.cfg.Namespace)
	}
	clone.SetToken(token)
	return clone, nil
}

// Ensure implementation satisfies the interface.
var _ Client = (*brokerClient)(nil)
