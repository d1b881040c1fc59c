package secrets

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewInMemoryRepository creates a new in-memory secret repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{secrets: make(map[string]string)}
}

// Get returns the stored value.
func (r *InMemoryRepository) Get(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// PutIfAbsent stores value unless name exists.
func (r *InMemoryRepository) PutIfAbsent(_ context.Context, name, value string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.secrets[name]; ok {
		return existing, nil
	}
	r.secrets[name] = value
	return value, nil
}
