package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// KeyProvider lazily creates and caches per-install secrets.
// Creation is serialized so concurrent first use cannot persist two values.
type KeyProvider struct {
	repo   Repository
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewKeyProvider creates a new key provider.
func NewKeyProvider(repo Repository, logger zerolog.Logger) *KeyProvider {
	return &KeyProvider{
		repo:   repo,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// GetOrCreate returns the named secret, creating a random one on first use.
func (p *KeyProvider) GetOrCreate(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if value, ok := p.cache[name]; ok {
		return value, nil
	}

	value, err := p.repo.Get(ctx, name)
	if errors.Is(err, ErrSecretNotFound) {
		value, err = p.repo.PutIfAbsent(ctx, name, uuid.NewString())
		if err == nil {
			p.logger.Info().Str("secret", name).Msg("created secret")
		}
	}
	if err != nil {
		return "", fmt.Errorf("loading secret %s: %w", name, err)
	}

	p.cache[name] = value
	return value, nil
}

// Cipher returns the payload cipher keyed with the install encryption key.
func (p *KeyProvider) Cipher(ctx context.Context) (*Cipher, error) {
	secret, err := p.GetOrCreate(ctx, EncryptionKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(secret), nil
}
