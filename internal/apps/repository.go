package apps

import "context"

// UpdateFunc receives the stored collection and returns its replacement.
type UpdateFunc func([]AppInstance) ([]AppInstance, error)

// Repository persists the full collection of app instances.
// ReplaceAll swaps the stored collection atomically.
type Repository interface {
	// List returns every stored instance ordered by expiry.
	List(ctx context.Context) ([]AppInstance, error)

	// ReplaceAll replaces the stored collection with the given instances.
	ReplaceAll(ctx context.Context, instances []AppInstance) error

	// Update reads the collection, applies fn and stores the result as one
	// atomic step, excluding every other writer of the same store, including
	// other processes. An error from fn aborts the update and is returned
	// unchanged.
	Update(ctx context.Context, fn UpdateFunc) error
}

// Ensure implementations satisfy the interface.
var (
	_ Repository = (*InMemoryRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
