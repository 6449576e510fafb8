package vault

import (
	"context"
	"time"

	"github.com/midgard-labs/vaultlease/internal/observability"
)

// maybeStartRenewal launches the background renewal loop on first
// successful login, when renewal is enabled and the token has a TTL.
func (c *brokerClient) maybeStartRenewal() {
	if c.cfg.Renewal == nil || !c.cfg.Renewal.Enabled {
		return
	}
	if c.tokenTTL.Load() <= 0 {
		c.logger.Debug("token has no ttl, renewal loop not started")
		return
	}

	c.mu.Lock()
	if c.renewalStarted || c.closed {
		c.mu.Unlock()
		return
	}
	c.renewalStarted = true
	c.mu.Unlock()

	go c.tokenRenewalLoop()
}

// tokenRenewalLoop renews the session token at two thirds of its TTL.
// Renewal failures are logged and retried at the next tick; the session
// never regresses out of the authorized state here. If the token truly
// expired the caller sees permission errors on its next operation and
// decides whether to ResetWrapped.
func (c *brokerClient) tokenRenewalLoop() {
	defer close(c.stoppedCh)

	interval := c.renewalInterval()
	c.logger.Info("token renewal loop started",
		observability.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.logger.Debug("token renewal loop stopping")
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), DefaultRenewalTimeout)
			err := c.RenewToken(ctx)
			cancel()

			if err != nil {
				c.logger.Error("token renewal failed",
					observability.Error(err),
				)
				continue
			}

			// TTL may change after renewal; keep the cadence at two
			// thirds of whatever the broker granted.
			if next := c.renewalInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				c.logger.Debug("token renewal interval adjusted",
					observability.Duration("interval", interval),
				)
			}
		}
	}
}

// renewalInterval returns two thirds of the current token TTL, floored at
// the configured minimum.
func (c *brokerClient) renewalInterval() time.Duration {
	interval := time.Duration(c.tokenTTL.Load()) * time.Second * 2 / 3
	if min := c.cfg.Renewal.GetMinInterval(); interval < min {
		interval = min
	}
	return interval
}
