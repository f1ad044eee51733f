package cli

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/tryon/internal/config"
)

// isolateEnv points every tryon location at a temporary directory and
// clears the variables that would leak the developer's setup into a test.
// It returns the temporary TRYON_HOME.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvProjectDir, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvLogFormat, "")
	t.Setenv("TRYON_LOG_FILE", "")
	t.Setenv("TRYON_OUTPUT_DIR", filepath.Join(home, "results"))
	t.Setenv("TRYON_CREDENTIALS_FILE", filepath.Join(home, "api_key.txt"))

	config.ResetGlobalConfigForTest()
	config.SetResolvedProjectDir("")
	t.Cleanup(func() {
		config.ResetGlobalConfigForTest()
		config.SetResolvedProjectDir("")
	})
	return home
}

// executeRoot runs the root command with args and returns stdout and stderr.
func executeRoot(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd("test-version")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writePNG writes a small valid PNG to path.
func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd("1.2.3")

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"generate", "key", "config", "setup", "version"} {
		assert.Contains(t, names, want)
	}
	assert.Equal(t, "1.2.3", cmd.Version)
	assert.True(t, cmd.SilenceUsage)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd("test")

	for _, name := range []string{"debug", "log-level", "project-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCmd_VersionCommand(t *testing.T) {
	isolateEnv(t)

	stdout, _, err := executeRoot(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tryon version")
	assert.Contains(t, stdout, "go: ")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	isolateEnv(t)

	_, _, err := executeRoot(t, "", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRootCmd_ProjectOverlay(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TRYON_OUTPUT_DIR", "")

	project := t.TempDir()
	overlay := filepath.Join(project, config.ProjectDirName, "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(overlay), 0o750))
	require.NoError(t, os.WriteFile(overlay, []byte("batch:\n  size: 4\n"), 0o600))

	stdout, _, err := executeRoot(t, "", "--project-dir", project, "config", "get", "batch.size")
	require.NoError(t, err)
	assert.Equal(t, "4\n", stdout)
}

func TestRootCmd_LogLevelFlag(t *testing.T) {
	isolateEnv(t)

	_, _, err := executeRoot(t, "", "--log-level", "error", "config", "get", "batch.size")
	require.NoError(t, err)
	assert.Equal(t, "error", logger.GetLevel().String())
}
