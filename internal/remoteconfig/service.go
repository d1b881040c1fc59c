package remoteconfig

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the remote config service.
type ServiceConfig struct {
	Fetcher Fetcher
	Logger  zerolog.Logger

	// CacheTTL is how long a fetched document stays valid. Default: 24 hours.
	CacheTTL time.Duration

	// FailureTTL is how long the defaults are served after a failed fetch.
	// Default: 5 minutes.
	FailureTTL time.Duration

	// RelayURLOverride replaces the relay URL of every document when set.
	RelayURLOverride string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service caches the remote config with fallback to defaults.
type Service struct {
	fetcher       Fetcher
	logger        zerolog.Logger
	cacheTTL      time.Duration
	failureTTL    time.Duration
	relayOverride string
	now           func() time.Time

	refreshMu   sync.Mutex
	mu          sync.RWMutex
	cached      Config
	cacheExpiry time.Time
	fetchedAt   time.Time
}

// NewService creates a new remote config service serving defaults until the
// first successful fetch.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.FailureTTL == 0 {
		cfg.FailureTTL = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		fetcher:       cfg.Fetcher,
		logger:        cfg.Logger,
		cacheTTL:      cfg.CacheTTL,
		failureTTL:    cfg.FailureTTL,
		relayOverride: cfg.RelayURLOverride,
		now:           cfg.Now,
		cached:        DefaultConfig(),
	}
}

// Current returns the cached config without fetching.
func (s *Service) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applyOverride(s.cached)
}

// GetConfig returns the cached config, fetching a new document first when
// the cache has expired.
func (s *Service) GetConfig(ctx context.Context) Config {
	if s.Stale() {
		_ = s.Refresh(ctx)
	}
	return s.Current()
}

// Stale reports whether the cached config has expired.
func (s *Service) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.now().Before(s.cacheExpiry)
}

// ExpiresAt returns when the cached config goes stale. Zero before the first
// fetch attempt.
func (s *Service) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheExpiry
}

// FetchedAt returns when the cached document was fetched. Zero while the
// defaults are served.
func (s *Service) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Refresh fetches the document now. On failure the defaults are served for
// FailureTTL before the next attempt.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cfg, err := s.fetcher.Fetch(ctx)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).
			Dur("retry_in", s.failureTTL).
			Msg("failed to fetch remote config, using defaults")
		s.cached = DefaultConfig()
		s.cacheExpiry = now.Add(s.failureTTL)
		s.fetchedAt = time.Time{}
		return err
	}

	s.cached = cfg
	s.cacheExpiry = now.Add(s.cacheTTL)
	s.fetchedAt = now
	s.logger.Info().
		Int("update_percent_modulus", cfg.UpdatePercentModulus).
		Int("high_precision_range_start", cfg.HighPrecisionRangeStart).
		Int("high_precision_range_end", cfg.HighPrecisionRangeEnd).
		Int("min_interval_secs", cfg.MinIntervalSecs).
		Msg("loaded remote config")
	return nil
}

// RelayURL returns the push relay endpoint.
func (s *Service) RelayURL(_ context.Context) string {
	return s.Current().SendNotificationURL
}

func (s *Service) applyOverride(cfg Config) Config {
	if s.relayOverride != "" {
		cfg.SendNotificationURL = s.relayOverride
	}
	return cfg
}
