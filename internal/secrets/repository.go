// Package secrets provides the per-install secrets (payload encryption key,
// API signing key) and the payload cipher.
package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when a secret has not been created yet.
var ErrSecretNotFound = errors.New("secret not found")

// Well-known secret names.
const (
	EncryptionKey = "encryption_key"
	APISigningKey = "api_signing_key"
)

// Repository persists named secrets.
type Repository interface {
	// Get returns the stored value or ErrSecretNotFound.
	Get(ctx context.Context, name string) (string, error)

	// PutIfAbsent stores value unless the name already exists and returns
	// whichever value is stored afterwards.
	PutIfAbsent(ctx context.Context, name, value string) (string, error)
}

// Ensure implementations satisfy the interface.
var (
	_ Repository = (*InMemoryRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
