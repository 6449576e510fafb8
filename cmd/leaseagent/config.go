package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/midgard-labs/vaultlease/internal/observability"
	"github.com/midgard-labs/vaultlease/internal/vault"
)

// Lease kinds accepted in the agent configuration.
const (
	leaseTypeStatic  = "static"
	leaseTypeDynamic = "dynamic"
)

// AgentConfig is the top-level agent configuration.
type AgentConfig struct {
	// Vault is the broker client configuration.
	Vault *vault.Config `yaml:"vault"`

	// Logging configures the agent logger.
	Logging observability.LogConfig `yaml:"logging"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Watcher configures wrapped credential re-delivery.
	Watcher WatcherConfig `yaml:"watcher"`

	// Leases lists the secret leases the agent keeps warm.
	Leases []LeaseSpec `yaml:"leases"`
}

// MetricsConfig configures the metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled enables the /metrics endpoint.
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the metrics listen address. Defaults to ":9090".
	ListenAddress string `yaml:"listenAddress,omitempty"`
}

// GetListenAddress returns the effective metrics listen address.
func (c *MetricsConfig) GetListenAddress() string {
	if c != nil && c.ListenAddress != "" {
		return c.ListenAddress
	}
	return ":9090"
}

// WatcherConfig configures the wrapped SecretID file watcher.
type WatcherConfig struct {
	// Enabled enables the credential watcher.
	Enabled bool `yaml:"enabled"`

	// WrappedSecretIDFile is the file an out-of-band provisioner writes
	// freshly wrapped SecretIDs into.
	WrappedSecretIDFile string `yaml:"wrappedSecretIdFile,omitempty"`
}

// LeaseSpec names one secret lease the agent polls.
type LeaseSpec struct {
	// EngineMount is the secrets engine mount point.
	EngineMount string `yaml:"engineMount"`

	// Role is the role name under the engine.
	Role string `yaml:"role"`

	// Type is the lease kind: static or dynamic.
	Type string `yaml:"type"`

	// Interval is the poll interval. Defaults to 1 minute.
	Interval vault.Duration `yaml:"interval,omitempty"`
}

// GetInterval returns the effective poll interval.
func (s *LeaseSpec) GetInterval() time.Duration {
	if s != nil && s.Interval > 0 {
		return s.Interval.Duration()
	}
	return time.Minute
}

// loadAgentConfig loads and validates the agent configuration file.
func loadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &AgentConfig{
		Logging: observability.DefaultLogConfig(),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.Vault == nil {
		return fmt.Errorf("vault configuration is required")
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}

	if c.Watcher.Enabled {
		if c.Watcher.WrappedSecretIDFile == "" {
			return fmt.Errorf("watcher.wrappedSecretIdFile is required when the watcher is enabled")
		}
		if c.Vault.AuthMethod != vault.AuthMethodAppRole {
			return fmt.Errorf("watcher requires approle authentication")
		}
	}

	for i, lease := range c.Leases {
		if lease.EngineMount == "" || lease.Role == "" {
			return fmt.Errorf("leases[%d]: engineMount and role are required", i)
		}
		if lease.Type != leaseTypeStatic && lease.Type != leaseTypeDynamic {
			return fmt.Errorf("leases[%d]: type must be %q or %q", i, leaseTypeStatic, leaseTypeDynamic)
		}
	}

	return nil
}
