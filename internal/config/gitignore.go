package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const gitignoreName = ".gitignore"

// projectIgnores lists what a .tryon/ directory must keep out of version
// control. config.yaml is deliberately absent so it can be shared.
var projectIgnores = []string{ //nolint:gochecknoglobals // read-only table
	DefaultCredentialsFile,
	"results/",
	"*.log",
	".env",
}

// GitignoreContent returns the .gitignore written into project-local
// .tryon/ directories.
func GitignoreContent() string {
	content := "# tryon project-local data (auto-generated)\n" +
		"# Config is tracked; credentials, results and logs are not.\n"
	for _, pattern := range projectIgnores {
		content += pattern + "\n"
	}
	return content
}

// EnsureGitignore writes GitignoreContent to dir/.gitignore, creating dir as
// needed. An existing file is left untouched and reported as created=false.
func EnsureGitignore(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, gitignoreName)
	//nolint:gosec // .gitignore must be world-readable (0644).
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", path, err)
	}

	if _, err = f.WriteString(GitignoreContent()); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, f.Close()
}
