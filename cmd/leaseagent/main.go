// Package main is the entry point for the lease agent, a sidecar that
// authenticates with a secrets broker from wrapped credentials and keeps
// a configured set of secret leases warm.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/midgard-labs/vaultlease/internal/observability"
	"github.com/midgard-labs/vaultlease/internal/vault"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// authRetryInterval is how long the agent waits between failed
// authentication attempts at startup.
const authRetryInterval = 5 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadAgentConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting leaseagent",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("agent failed", observability.Error(err))
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("LEASEAGENT_CONFIG_PATH", "configs/leaseagent.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("leaseagent version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// run wires the agent together and blocks until shutdown.
func run(cfg *AgentConfig, logger observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := vault.New(cfg.Vault, logger)
	if err != nil {
		return fmt.Errorf("create broker client: %w", err)
	}
	defer func() { _ = client.Close() }()

	metricsServer := startMetricsServer(cfg, logger)

	if err := authenticateUntilReady(ctx, client, logger); err != nil {
		return err
	}

	watcher, err := startWatcher(cfg, client, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, spec := range cfg.Leases {
		wg.Add(1)
		go func(spec LeaseSpec) {
			defer wg.Done()
			pollLease(ctx, client, spec, logger)
		}(spec)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	wg.Wait()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop credential watcher", observability.Error(err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", observability.Error(err))
		}
	}

	return nil
}

// authenticateUntilReady drives the session to the authorized state,
// retrying on a fixed cadence until it succeeds or shutdown begins.
func authenticateUntilReady(ctx context.Context, client vault.Client, logger observability.Logger) error {
	for {
		if client.Authenticate(ctx) {
			logger.Info("session authorized",
				observability.String("state", client.State().String()),
			)
			return nil
		}

		logger.Warn("authentication failed, retrying",
			observability.String("state", client.State().String()),
			observability.Duration("retry_in", authRetryInterval),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(authRetryInterval):
		}
	}
}

// startWatcher starts the wrapped credential file watcher when enabled.
func startWatcher(cfg *AgentConfig, client vault.Client, logger observability.Logger) (*vault.CredentialWatcher, error) {
	if !cfg.Watcher.Enabled {
		return nil, nil
	}

	watcher, err := vault.NewCredentialWatcher(
		client,
		cfg.Vault.AppRole.RoleID,
		cfg.Watcher.WrappedSecretIDFile,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return nil, fmt.Errorf("start credential watcher: %w", err)
	}

	return watcher, nil
}

// startMetricsServer exposes Prometheus metrics when enabled.
func startMetricsServer(cfg *AgentConfig, logger observability.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Metrics.GetListenAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening",
			observability.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", observability.Error(err))
		}
	}()

	return server
}

// pollLease reads one configured lease on its interval until shutdown.
// Reads that come back absent are logged and retried on the next tick.
func pollLease(ctx context.Context, client vault.Client, spec LeaseSpec, logger observability.Logger) {
	log := logger.With(
		observability.String("engine", spec.EngineMount),
		observability.String("role", spec.Role),
		observability.String("type", spec.Type),
	)

	ticker := time.NewTicker(spec.GetInterval())
	defer ticker.Stop()

	readLease(ctx, client, spec, log)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readLease(ctx, client, spec, log)
		}
	}
}

func readLease(ctx context.Context, client vault.Client, spec LeaseSpec, log observability.Logger) {
	var (
		lease *vault.SecretLease
		err   error
	)
	if spec.Type == leaseTypeStatic {
		lease, err = client.Leases().ReadStatic(ctx, spec.EngineMount, spec.Role)
	} else {
		lease, err = client.Leases().ReadDynamic(ctx, spec.EngineMount, spec.Role)
	}

	switch {
	case err != nil:
		log.Error("lease read failed", observability.Error(err))
	case lease == nil:
		log.Warn("lease not available")
	default:
		log.Info("lease refreshed",
			observability.Duration("ttl", lease.TTL),
			observability.Bool("renewable", lease.Renewable),
		)
	}
}
