package vault

import (
	"fmt"
	"time"
)

// AuthMethodName specifies the broker authentication method.
type AuthMethodName string

// Authentication method constants.
const (
	// AuthMethodToken uses direct token authentication.
	AuthMethodToken AuthMethodName = "token"

	// AuthMethodAppRole uses AppRole authentication with RoleID and SecretID.
	AuthMethodAppRole AuthMethodName = "approle"
)

// String returns the string representation of the auth method.
func (m AuthMethodName) String() string {
	return string(m)
}

// IsValid returns true if the auth method is valid.
func (m AuthMethodName) IsValid() bool {
	switch m {
	case AuthMethodToken, AuthMethodAppRole:
		return true
	default:
		return false
	}
}

// DefaultAppRoleMountPath is the default mount path for AppRole auth.
const DefaultAppRoleMountPath = "approle"

// Config represents broker client configuration.
type Config struct {
	// Address is the broker server address.
	Address string `yaml:"address" json:"address"`

	// Namespace scopes every call to a child namespace. Empty means the
	// root namespace.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// AuthMethod specifies the authentication method.
	AuthMethod AuthMethodName `yaml:"authMethod" json:"authMethod"`

	// Token for token authentication.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// AppRole auth configuration.
	AppRole *AppRoleConfig `yaml:"appRole,omitempty" json:"appRole,omitempty"`

	// TLS configuration for the broker connection.
	TLS *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// Retry configuration for idempotent reads.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Breaker configuration for the broker circuit breaker.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`

	// RateLimit configuration for outbound broker requests.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`

	// Renewal configuration for background session token renewal.
	Renewal *RenewalConfig `yaml:"renewal,omitempty" json:"renewal,omitempty"`
}

// AppRoleConfig configures AppRole authentication.
type AppRoleConfig struct {
	// RoleID is the AppRole role ID.
	RoleID string `yaml:"roleId" json:"roleId"`

	// SecretID is the AppRole secret ID, or a wrapping token when
	// SecretIDWrapped is set.
	SecretID string `yaml:"secretId" json:"secretId"`

	// SecretIDWrapped marks SecretID as a single-use wrapping token that
	// must be unwrapped before login.
	SecretIDWrapped bool `yaml:"secretIdWrapped,omitempty" json:"secretIdWrapped,omitempty"`

	// MountPath is the mount path for the AppRole auth method.
	// Defaults to "approle".
	MountPath string `yaml:"mountPath,omitempty" json:"mountPath,omitempty"`
}

// GetMountPath returns the effective mount path for AppRole auth.
func (c *AppRoleConfig) GetMountPath() string {
	if c.MountPath != "" {
		return c.MountPath
	}
	return DefaultAppRoleMountPath
}

// TLSConfig configures TLS for the broker connection.
type TLSConfig struct {
	// CACert is the path to the CA certificate file.
	CACert string `yaml:"caCert,omitempty" json:"caCert,omitempty"`

	// CAPath is the path to a directory of CA certificates.
	CAPath string `yaml:"caPath,omitempty" json:"caPath,omitempty"`

	// ClientCert is the path to the client certificate file.
	ClientCert string `yaml:"clientCert,omitempty" json:"clientCert,omitempty"`

	// ClientKey is the path to the client private key file.
	ClientKey string `yaml:"clientKey,omitempty" json:"clientKey,omitempty"`

	// SkipVerify skips TLS certificate verification (insecure).
	SkipVerify bool `yaml:"skipVerify,omitempty" json:"skipVerify,omitempty"`
}

// Validate validates the TLS configuration.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.ClientCert != "" && c.ClientKey == "" {
		return NewConfigurationError("tls.clientKey", "client key is required when client cert is provided")
	}
	if c.ClientKey != "" && c.ClientCert == "" {
		return NewConfigurationError("tls.clientCert", "client cert is required when client key is provided")
	}

	return nil
}

// RetryConfig configures retry behavior for idempotent reads.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Defaults to 3.
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`

	// BackoffBase is the base duration for exponential backoff.
	// Defaults to 100ms.
	BackoffBase Duration `yaml:"backoffBase,omitempty" json:"backoffBase,omitempty"`

	// BackoffMax is the maximum backoff duration.
	// Defaults to 5 seconds.
	BackoffMax Duration `yaml:"backoffMax,omitempty" json:"backoffMax,omitempty"`
}

// GetMaxRetries returns the effective max retries.
func (c *RetryConfig) GetMaxRetries() int {
	if c != nil && c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

// GetBackoffBase returns the effective backoff base duration.
func (c *RetryConfig) GetBackoffBase() time.Duration {
	if c != nil && c.BackoffBase > 0 {
		return c.BackoffBase.Duration()
	}
	return 100 * time.Millisecond
}

// GetBackoffMax returns the effective backoff max duration.
func (c *RetryConfig) GetBackoffMax() time.Duration {
	if c != nil && c.BackoffMax > 0 {
		return c.BackoffMax.Duration()
	}
	return 5 * time.Second
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.MaxRetries < 0 {
		return NewConfigurationError("retry.maxRetries", "maxRetries cannot be negative")
	}
	if c.BackoffBase < 0 {
		return NewConfigurationError("retry.backoffBase", "backoffBase cannot be negative")
	}
	if c.BackoffMax < 0 {
		return NewConfigurationError("retry.backoffMax", "backoffMax cannot be negative")
	}
	if c.BackoffBase > 0 && c.BackoffMax > 0 && c.BackoffBase > c.BackoffMax {
		return NewConfigurationError("retry.backoffBase", "backoffBase cannot be greater than backoffMax")
	}

	return nil
}

// BreakerConfig configures the circuit breaker around broker calls.
type BreakerConfig struct {
	// Enabled enables the circuit breaker.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxFailures is the number of consecutive failures that trips the
	// breaker. Defaults to 5.
	MaxFailures uint32 `yaml:"maxFailures,omitempty" json:"maxFailures,omitempty"`

	// Timeout is how long the breaker stays open before probing.
	// Defaults to 30 seconds.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// GetMaxFailures returns the effective failure threshold.
func (c *BreakerConfig) GetMaxFailures() uint32 {
	if c != nil && c.MaxFailures > 0 {
		return c.MaxFailures
	}
	return 5
}

// GetTimeout returns the effective open-state timeout.
func (c *BreakerConfig) GetTimeout() time.Duration {
	if c != nil && c.Timeout > 0 {
		return c.Timeout.Duration()
	}
	return 30 * time.Second
}

// RateLimitConfig configures outbound broker request rate limiting.
type RateLimitConfig struct {
	// Enabled enables rate limiting.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerSecond is the sustained request rate. Defaults to 10.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`

	// Burst is the maximum burst size. Defaults to 20.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// GetRequestsPerSecond returns the effective sustained rate.
func (c *RateLimitConfig) GetRequestsPerSecond() float64 {
	if c != nil && c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	return 10
}

// GetBurst returns the effective burst size.
func (c *RateLimitConfig) GetBurst() int {
	if c != nil && c.Burst > 0 {
		return c.Burst
	}
	return 20
}

// RenewalConfig configures background session token renewal.
type RenewalConfig struct {
	// Enabled enables the background renewal loop.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MinInterval is the minimum renewal interval. Defaults to 1 minute.
	MinInterval Duration `yaml:"minInterval,omitempty" json:"minInterval,omitempty"`
}

// GetMinInterval returns the effective minimum renewal interval.
func (c *RenewalConfig) GetMinInterval() time.Duration {
	if c != nil && c.MinInterval > 0 {
		return c.MinInterval.Duration()
	}
	return time.Minute
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		AuthMethod: AuthMethodToken,
		Retry: &RetryConfig{
			MaxRetries:  3,
			BackoffBase: Duration(100 * time.Millisecond),
			BackoffMax:  Duration(5 * time.Second),
		},
	}
}

// Validate validates the broker configuration.
func (c *Config) Validate() error {
	if c == nil {
		return NewConfigurationError("", "configuration is nil")
	}

	if c.Address == "" {
		return NewConfigurationError("address", "broker address is required")
	}

	if !c.AuthMethod.IsValid() {
		return NewConfigurationError("authMethod", fmt.Sprintf("invalid auth method: %s", c.AuthMethod))
	}

	if err := c.validateAuthMethodConfig(); err != nil {
		return err
	}

	if err := c.TLS.Validate(); err != nil {
		return err
	}

	return c.Retry.Validate()
}

// validateAuthMethodConfig validates auth method specific configuration.
func (c *Config) validateAuthMethodConfig() error {
	switch c.AuthMethod {
	case AuthMethodToken:
		if c.Token == "" {
			return NewConfigurationError("token", "token is required for token authentication")
		}
	case AuthMethodAppRole:
		if c.AppRole == nil {
			return NewConfigurationError("appRole", "appRole configuration is required for approle authentication")
		}
		if c.AppRole.RoleID == "" {
			return NewConfigurationError("appRole.roleId", "roleId is required for approle authentication")
		}
		if c.AppRole.SecretID == "" {
			return NewConfigurationError("appRole.secretId", "secretId is required for approle authentication")
		}
	}
	return nil
}

// Clone creates a deep copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := &Config{
		Address:    c.Address,
		Namespace:  c.Namespace,
		AuthMethod: c.AuthMethod,
		Token:      c.Token,
	}

	if c.AppRole != nil {
		clone.AppRole = &AppRoleConfig{
			RoleID:          c.AppRole.RoleID,
			SecretID:        c.AppRole.SecretID,
			SecretIDWrapped: c.AppRole.SecretIDWrapped,
			MountPath:       c.AppRole.MountPath,
		}
	}

	if c.TLS != nil {
		clone.TLS = &TLSConfig{
			CACert:     c.TLS.CACert,
			CAPath:     c.TLS.CAPath,
			ClientCert: c.TLS.ClientCert,
			ClientKey:  c.TLS.ClientKey,
			SkipVerify: c.TLS.SkipVerify,
		}
	}

	if c.Retry != nil {
		clone.Retry = &RetryConfig{
			MaxRetries:  c.Retry.MaxRetries,
			BackoffBase: c.Retry.BackoffBase,
			BackoffMax:  c.Retry.BackoffMax,
		}
	}

	if c.Breaker != nil {
		clone.Breaker = &BreakerConfig{
			Enabled:     c.Breaker.Enabled,
			MaxFailures: c.Breaker.MaxFailures,
			Timeout:     c.Breaker.Timeout,
		}
	}

	if c.RateLimit != nil {
		clone.RateLimit = &RateLimitConfig{
			Enabled:           c.RateLimit.Enabled,
			RequestsPerSecond: c.RateLimit.RequestsPerSecond,
			Burst:             c.RateLimit.Burst,
		}
	}

	if c.Renewal != nil {
		clone.Renewal = &RenewalConfig{
			Enabled:     c.Renewal.Enabled,
			MinInterval: c.Renewal.MinInterval,
		}
	}

	return clone
}
