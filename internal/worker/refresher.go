package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRefreshInterval is the longest the refresher sleeps between checks.
const DefaultRefreshInterval = time.Hour

// minRefreshWait keeps an already expired cache from spinning the loop.
const minRefreshWait = time.Second

// RefreshableConfig is a configuration cache that can be refreshed.
type RefreshableConfig interface {
	Stale() bool
	ExpiresAt() time.Time
	Refresh(ctx context.Context) error
}

// ConfigRefresher keeps the remote configuration fresh in the background so
// that event handling never waits on a fetch.
type ConfigRefresher struct {
	config   RefreshableConfig
	logger   zerolog.Logger
	interval time.Duration
}

// NewConfigRefresher creates a new config refresher. A zero interval uses
// DefaultRefreshInterval.
func NewConfigRefresher(config RefreshableConfig, interval time.Duration, logger zerolog.Logger) *ConfigRefresher {
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	return &ConfigRefresher{config: config, logger: logger, interval: interval}
}

// Run refreshes once on start and then whenever the cache expires, checking
// at least every interval, until ctx is done. A failed fetch is retried once
// the short failure window of the cache lapses.
func (r *ConfigRefresher) Run(ctx context.Context) {
	r.RunOnce(ctx)

	timer := time.NewTimer(r.nextWait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.RunOnce(ctx)
			timer.Reset(r.nextWait())
		}
	}
}

func (r *ConfigRefresher) nextWait() time.Duration {
	wait := time.Until(r.config.ExpiresAt())
	switch {
	case wait > r.interval:
		return r.interval
	case wait < minRefreshWait:
		return minRefreshWait
	}
	return wait
}

// RunOnce refreshes the configuration if it is stale.
func (r *ConfigRefresher) RunOnce(ctx context.Context) {
	if !r.config.Stale() {
		r.logger.Debug().Msg("remote config still valid")
		return
	}
	if err := r.config.Refresh(ctx); err != nil {
		r.logger.Debug().Err(err).Msg("remote config refresh failed")
	}
}
