package apps

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Used by tests and by the memory store driver.
type InMemoryRepository struct {
	mu        sync.RWMutex
	instances []AppInstance

	// FailWrites makes ReplaceAll fail with the given error.
	FailWrites error
}

// NewInMemoryRepository creates a new in-memory app repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// List returns a copy of the stored instances ordered by expiry.
func (r *InMemoryRepository) List(_ context.Context) ([]AppInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AppInstance, 0, len(r.instances))
	for _, app := range r.instances {
		out = append(out, copyApp(app))
	}
	sortByExpiry(out)
	return out, nil
}

// ReplaceAll replaces the stored instances.
func (r *InMemoryRepository) ReplaceAll(_ context.Context, instances []AppInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites != nil {
		return r.FailWrites
	}

	stored := make([]AppInstance, 0, len(instances))
	for _, app := range instances {
		stored = append(stored, copyApp(app))
	}
	r.instances = stored
	return nil
}

// Update applies fn under the write lock.
func (r *InMemoryRepository) Update(_ context.Context, fn UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make([]AppInstance, 0, len(r.instances))
	for _, app := range r.instances {
		current = append(current, copyApp(app))
	}
	sortByExpiry(current)

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if r.FailWrites != nil {
		return r.FailWrites
	}

	stored := make([]AppInstance, 0, len(updated))
	for _, app := range updated {
		stored = append(stored, copyApp(app))
	}
	r.instances = stored
	return nil
}

func sortByExpiry(list []AppInstance) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ExpireAt.Before(list[j].ExpireAt)
	})
}

// copyApp creates a deep copy of an instance.
func copyApp(a AppInstance) AppInstance {
	c := a
	if a.FallbackToken != nil {
		val := *a.FallbackToken
		c.FallbackToken = &val
	}
	if a.DisplayDescription != nil {
		val := *a.DisplayDescription
		c.DisplayDescription = &val
	}
	return c
}
