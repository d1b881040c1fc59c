// Package worker runs the background loops of the notification service.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/apps"
)

// DefaultSweepInterval is the period of the expiry sweep.
const DefaultSweepInterval = 60 * time.Second

// ExpiredApps is the registry view the sweeper needs.
type ExpiredApps interface {
	GetAll(ctx context.Context) ([]apps.AppInstance, error)
	RemoveExpired(ctx context.Context, tokens []string, now time.Time) (int, error)
}

// ExpiryNotifier ends expired live activities.
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, targets []apps.AppInstance) error
}

// SweeperConfig holds configuration for the expiry sweeper.
type SweeperConfig struct {
	Apps     ExpiredApps
	Notifier ExpiryNotifier
	Logger   zerolog.Logger

	// Interval is the time between sweeps. Default: 60 seconds.
	Interval time.Duration

	Now func() time.Time
}

// SweepResult contains the result of one sweep.
type SweepResult struct {
	StartTime  time.Time
	Duration   time.Duration
	Expired    int
	Activities int
	Removed    int
}

// SweepMetrics tracks sweeper statistics.
type SweepMetrics struct {
	TotalSweeps       int64
	FailedSweeps      int64
	ExpiredFound      int64
	Removed           int64
	LastSweepAt       time.Time
	LastSweepDuration time.Duration
}

// ExpirySweeper retires live activity registrations whose expiry has passed.
// Each one is told to end before it is removed.
type ExpirySweeper struct {
	apps     ExpiredApps
	notifier ExpiryNotifier
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	metrics SweepMetrics
}

// NewExpirySweeper creates a new expiry sweeper.
func NewExpirySweeper(cfg SweeperConfig) *ExpirySweeper {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExpirySweeper{
		apps:     cfg.Apps,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
}

// Run sweeps on every interval until ctx is done. A failed sweep is logged
// and the loop continues.
func (s *ExpirySweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("starting expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{StartTime: now}

	all, err := s.apps.GetAll(ctx)
	if err != nil {
		s.record(result, err)
		return result, err
	}

	// Only live activities expire actively. Plain registrations stay until
	// the app unregisters or the relay reports the token invalid.
	expired := apps.Activities(apps.Expired(all, now))
	result.Expired = len(expired)
	result.Activities = len(expired)
	if len(expired) == 0 {
		s.record(result, nil)
		return result, nil
	}

	if err := s.notifier.NotifyExpired(ctx, expired); err != nil {
		s.logger.Warn().Err(err).Int("activity_count", len(expired)).Msg("failed to end expired activities")
	}

	removed, err := s.apps.RemoveExpired(ctx, apps.Tokens(expired), now)
	result.Removed = removed
	result.Duration = time.Since(now)
	s.record(result, err)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("expired", result.Expired).
		Int("removed", removed).
		Msg("expired activities removed")
	return result, nil
}

func (s *ExpirySweeper) record(result *SweepResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalSweeps++
	if err != nil {
		s.metrics.FailedSweeps++
	}
	s.metrics.ExpiredFound += int64(result.Expired)
	s.metrics.Removed += int64(result.Removed)
	s.metrics.LastSweepAt = result.StartTime
	s.metrics.LastSweepDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (s *ExpirySweeper) GetMetrics() SweepMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// MetricsSnapshot returns the current metrics as a map.
func (s *ExpirySweeper) MetricsSnapshot() map[string]interface{} {
	m := s.GetMetrics()
	return map[string]interface{}{
		"total_sweeps":        m.TotalSweeps,
		"failed_sweeps":       m.FailedSweeps,
		"expired_found":       m.ExpiredFound,
		"removed":             m.Removed,
		"last_sweep_at":       m.LastSweepAt,
		"last_sweep_duration": m.LastSweepDuration.String(),
	}
}
