package vault

import (
	"github.com/sony/gobreaker"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

// newBreaker builds a circuit breaker for broker calls, or nil when the
// breaker is disabled. A tripped breaker fails broker calls fast instead
// of piling requests onto a broker that is already refusing them.
func newBreaker(cfg *BreakerConfig, logger observability.Logger) *gobreaker.CircuitBreaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	maxFailures := cfg.GetMaxFailures()

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "broker",
		Timeout: cfg.GetTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Only broker-side failures should trip the breaker; client
			// errors (bad credentials, invalid arguments) are not a sign
			// of broker distress.
			return err == nil || !IsRetryable(err)
		},
	})
}
