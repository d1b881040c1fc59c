package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c := NewCipher("0b0a2f3c-1d4e-4f50-8a6b-7c8d9e0f1a2b")
	plaintexts := [][]byte{
		[]byte(`{"type":"printing","progress":42}`),
		[]byte(`{}`),
		[]byte(""),
		[]byte("exactly sixteen!"),
	}

	for _, plain := range plaintexts {
		encoded, err := c.Encrypt(plain)
		require.NoError(t, err)

		decoded, err := c.Decrypt(encoded)
		require.NoError(t, err)
		assert.Equal(t, plain, decoded)
	}
}

func TestCipher_WireFormat(t *testing.T) {
	secret := "secret"
	c := NewCipher(secret)

	encoded, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	// IV plus one padded block.
	require.Len(t, raw, 2*aes.BlockSize)

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	plain := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, raw[:aes.BlockSize]).CryptBlocks(plain, raw[aes.BlockSize:])

	assert.Equal(t, "hello", string(plain[:5]))
	for _, b := range plain[5:] {
		assert.Equal(t, byte(11), b)
	}
}

func TestCipher_FreshIV(t *testing.T) {
	c := NewCipher("secret")
	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_DecryptRejectsGarbage(t *testing.T) {
	c := NewCipher("secret")

	_, err := c.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestKeyProvider_CreatesOnce(t *testing.T) {
	repo := NewInMemoryRepository()
	provider := NewKeyProvider(repo, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	values := make([]string, 16)
	for i := range values {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := provider.GetOrCreate(ctx, EncryptionKey)
			assert.NoError(t, err)
			values[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range values {
		assert.Equal(t, values[0], v)
	}
	_, err := uuid.Parse(values[0])
	assert.NoError(t, err)

	stored, err := repo.Get(ctx, EncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, values[0], stored)
}

func TestKeyProvider_ReusesPersistedKey(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	_, err := repo.PutIfAbsent(ctx, EncryptionKey, "existing")
	require.NoError(t, err)

	provider := NewKeyProvider(repo, zerolog.Nop())
	v, err := provider.GetOrCreate(ctx, EncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, "existing", v)

	other, err := provider.GetOrCreate(ctx, APISigningKey)
	require.NoError(t, err)
	assert.NotEqual(t, "existing", other)
}

type failingRepository struct{}

func (failingRepository) Get(context.Context, string) (string, error) {
	return "", errors.New("db down")
}

func (failingRepository) PutIfAbsent(context.Context, string, string) (string, error) {
	return "", errors.New("db down")
}

func TestKeyProvider_PropagatesErrors(t *testing.T) {
	provider := NewKeyProvider(failingRepository{}, zerolog.Nop())
	_, err := provider.GetOrCreate(context.Background(), EncryptionKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
