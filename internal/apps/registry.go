package apps

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RegistryConfig holds configuration for the app registry.
type RegistryConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Registry owns the app instances. Every read and write passes through one
// mutex, so read-decide-write sequences from the API, the dispatcher and the
// expiry sweeper never lose an update. Each mutation is also a single
// Repository.Update, which extends the guarantee to other processes sharing
// the store.
type Registry struct {
	mu     sync.Mutex
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewRegistry creates a new registry backed by the given repository.
func NewRegistry(cfg RegistryConfig) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    now,
	}
}

// GetAll returns every registered instance.
func (r *Registry) GetAll(ctx context.Context) ([]AppInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading apps: %w", err)
	}
	return list, nil
}

// ReplaceAll swaps the full collection.
func (r *Registry) ReplaceAll(ctx context.Context, instances []AppInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.ReplaceAll(ctx, instances); err != nil {
		return fmt.Errorf("saving apps: %w", err)
	}
	return nil
}

// Mutate runs fn as one critical section over the current collection and
// persists what it returns. Nothing is written when fn returns an error.
func (r *Registry) Mutate(ctx context.Context, fn func([]AppInstance) ([]AppInstance, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateLocked(ctx, fn)
}

func (r *Registry) mutateLocked(ctx context.Context, fn func([]AppInstance) ([]AppInstance, error)) error {
	var fnErr error
	err := r.repo.Update(ctx, func(list []AppInstance) ([]AppInstance, error) {
		updated, err := fn(list)
		fnErr = err
		return updated, err
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("updating apps: %w", err)
	}
	return nil
}

// Remove deletes the instances with the given tokens and returns how many
// were removed.
func (r *Registry) Remove(ctx context.Context, tokens ...string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	removed := 0
	err := r.Mutate(ctx, func(list []AppInstance) ([]AppInstance, error) {
		kept := slices.DeleteFunc(list, func(a AppInstance) bool {
			return slices.Contains(tokens, a.Token)
		})
		removed = len(list) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("removed apps")
	}
	return removed, nil
}

// Unregister removes a single instance by token.
func (r *Registry) Unregister(ctx context.Context, token string) error {
	removed, err := r.Remove(ctx, token)
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrAppNotFound
	}
	return nil
}

// Register validates and stores a registration. A registration replaces any
// instance with the same token. An activity registration first drops every
// other activity of the same device, so a device holds at most one.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (AppInstance, error) {
	if err := req.Validate(); err != nil {
		return AppInstance{}, err
	}

	app := req.toInstance(r.now())

	err := r.Mutate(ctx, func(list []AppInstance) ([]AppInstance, error) {
		kept := slices.DeleteFunc(list, func(a AppInstance) bool {
			if a.Token == app.Token {
				return true
			}
			return app.IsActivity() && a.IsActivity() && a.InstanceID == app.InstanceID
		})
		return append(kept, app), nil
	})
	if err != nil {
		return AppInstance{}, err
	}

	r.logger.Info().
		Str("instance_id", app.InstanceID).
		Str("token_suffix", app.TokenSuffix()).
		Bool("activity", app.IsActivity()).
		Time("expire_at", app.ExpireAt).
		Msg("registered app")

	return app, nil
}

// RemoveTemporary removes every live activity registration.
func (r *Registry) RemoveTemporary(ctx context.Context) (int, error) {
	removed := 0
	err := r.Mutate(ctx, func(list []AppInstance) ([]AppInstance, error) {
		kept := slices.DeleteFunc(list, AppInstance.IsActivity)
		removed = len(list) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("removed temporary apps")
	}
	return removed, nil
}

// RemoveExpired removes the given tokens, but only those still expired at
// now. A token re-registered since it was found expired carries a fresh
// expiry and survives.
func (r *Registry) RemoveExpired(ctx context.Context, tokens []string, now time.Time) (int, error) {
	removed := 0
	err := r.Mutate(ctx, func(list []AppInstance) ([]AppInstance, error) {
		kept := slices.DeleteFunc(list, func(a AppInstance) bool {
			return a.IsExpired(now) && slices.Contains(tokens, a.Token)
		})
		removed = len(list) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
