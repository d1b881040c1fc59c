package bootstrap

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PRINTPUSH_TEST_DOTENV=from-file\nPRINTPUSH_TEST_KEEP=from-file\n"), 0o600))

	t.Setenv("PRINTPUSH_TEST_KEEP", "from-env")
	t.Setenv("PRINTPUSH_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PRINTPUSH_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("PRINTPUSH_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("PRINTPUSH_TEST_KEEP"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printpush.yaml")
	require.NoError(t, os.WriteFile(path, []byte("printer:\n  name: Voron\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Voron", cfg.Printer.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, "printpush-api", "1.2.3", "warn")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "printpush-api", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
}

func TestNewLogger_BadLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, "printpush-api", "dev", "loud")

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
