package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/tryon/internal/config"
)

func TestConfigInit_Global(t *testing.T) {
	home := isolateEnv(t)

	stdout, _, err := executeRoot(t, "", "config", "init", "--global")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration initialized successfully")

	configPath := filepath.Join(home, "config.yaml")
	assert.FileExists(t, configPath)

	_, _, err = executeRoot(t, "", "config", "init", "--global")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeRoot(t, "", "config", "init", "--global", "--force")
	require.NoError(t, err)
}

func TestConfigInit_Project(t *testing.T) {
	isolateEnv(t)
	project := t.TempDir()

	stdout, _, err := executeRoot(t, "", "--project-dir", project, "config", "init")
	require.NoError(t, err)

	dir := filepath.Join(project, config.ProjectDirName)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, ".gitignore"))
	assert.Contains(t, stdout, "Configuration initialized at")
	assert.Contains(t, stdout, "Created .gitignore")

	// A hand-edited .gitignore survives a forced re-init.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("custom\n"), 0o600))
	stdout, _, err = executeRoot(t, "", "--project-dir", project, "config", "init", "--force")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Created .gitignore")
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "custom\n", string(data))
}

func TestConfigGet(t *testing.T) {
	isolateEnv(t)

	stdout, _, err := executeRoot(t, "", "config", "get", "batch.size")
	require.NoError(t, err)
	assert.Equal(t, "10\n", stdout)

	_, _, err = executeRoot(t, "", "config", "get", "no.such.key")
	require.ErrorIs(t, err, config.ErrUnknownKey)
}

func TestConfigGet_EnvOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRYON_STAGGER_MS", "750")

	stdout, _, err := executeRoot(t, "", "config", "get", "batch.stagger_ms")
	require.NoError(t, err)
	assert.Equal(t, "750\n", stdout)
}

func TestConfigList(t *testing.T) {
	isolateEnv(t)

	stdout, _, err := executeRoot(t, "", "config", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, len(config.Default().Keys()))
	assert.Contains(t, stdout, "batch.size")
	assert.Contains(t, stdout, "service.model")
	for _, line := range lines {
		if strings.HasPrefix(line, "job.prompt") {
			assert.True(t, strings.HasSuffix(line, "..."), "long prompt should be truncated")
		}
	}
}

func TestConfigPath(t *testing.T) {
	home := isolateEnv(t)
	project := t.TempDir()

	stdout, _, err := executeRoot(t, "", "config", "path")
	require.NoError(t, err)
	assert.Contains(t, stdout, "global:  "+filepath.Join(home, "config.yaml"))
	assert.NotContains(t, stdout, "project:")

	stdout, _, err = executeRoot(t, "", "--project-dir", project, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, stdout, "project: "+filepath.Join(project, config.ProjectDirName, "config.yaml"))
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults without key", func(t *testing.T) {
		isolateEnv(t)
		stdout, _, err := executeRoot(t, "", "config", "validate", "--verbose")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Warning: no API key found")
		assert.Contains(t, stdout, "Configuration is valid")
		assert.Contains(t, stdout, "Loaded from: (defaults)")
	})

	t.Run("invalid file", func(t *testing.T) {
		home := isolateEnv(t)
		require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"),
			[]byte("batch:\n  size: 0\n  stagger_ms: 10\n  cancel_wait_ms: 10\n"), 0o600))
		_, _, err := executeRoot(t, "", "config", "validate")
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}
