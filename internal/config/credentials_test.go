package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/tryon/internal/config"
)

func TestResolveAPIKey_EnvWins(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	writeFile(t, keyFile, "file-key\n")
	t.Setenv(config.EnvAPIKey, "  env-key  ")

	cfg := config.Default()
	cfg.Credentials.File = keyFile

	key, source, err := cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
	assert.Equal(t, config.SourceEnv, source)
}

func TestResolveAPIKey_FromFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	writeFile(t, keyFile, "\n  file-key \n")
	t.Setenv(config.EnvAPIKey, "")

	cfg := config.Default()
	cfg.Credentials.File = keyFile

	key, source, err := cfg.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)
	assert.Equal(t, config.SourceFile, source)
}

func TestResolveAPIKey_Missing(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")

	cfg := config.Default()
	cfg.Credentials.File = filepath.Join(t.TempDir(), "absent.txt")

	_, _, err := cfg.ResolveAPIKey()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrNoAPIKey)
}

func TestReadAPIKey_Blank(t *testing.T) {
	t.Parallel()

	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	writeFile(t, keyFile, "   \n")

	_, err := config.ReadAPIKey(keyFile)
	assert.ErrorIs(t, err, config.ErrNoAPIKey)
}

func TestWriteAPIKey(t *testing.T) {
	t.Parallel()

	keyFile := filepath.Join(t.TempDir(), "secrets", "api_key.txt")
	require.NoError(t, config.WriteAPIKey(keyFile, " AIza-example \n"))

	key, err := config.ReadAPIKey(keyFile)
	require.NoError(t, err)
	assert.Equal(t, "AIza-example", key)

	if runtime.GOOS != "windows" {
		info, statErr := os.Stat(keyFile)
		require.NoError(t, statErr)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestWriteAPIKey_TightensExistingMode(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("file permission tests not reliable on Windows")
	}

	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	require.NoError(t, os.WriteFile(keyFile, []byte("old"), 0o644))

	require.NoError(t, config.WriteAPIKey(keyFile, "new"))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAPIKey_RejectsEmpty(t *testing.T) {
	t.Parallel()

	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	err := config.WriteAPIKey(keyFile, "  ")
	require.ErrorIs(t, err, config.ErrNoAPIKey)

	_, statErr := os.Stat(keyFile)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}
