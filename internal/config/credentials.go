package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credential sources reported by ResolveAPIKey.
const (
	SourceEnv  = "env"
	SourceFile = "file"
)

// ErrNoAPIKey means neither GEMINI_API_KEY nor the key file holds a key.
var ErrNoAPIKey = errors.New("no Gemini API key configured")

// CredentialPath resolves the key file location. Relative paths are taken
// relative to the working directory, matching where the key is first saved.
func (c *Config) CredentialPath() string {
	if c.Credentials.File == "" {
		return DefaultCredentialsFile
	}
	return c.Credentials.File
}

// ResolveAPIKey returns the Gemini key and where it came from: the
// GEMINI_API_KEY variable first, then the key file.
func (c *Config) ResolveAPIKey() (key, source string, err error) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v, SourceEnv, nil
	}
	key, err = ReadAPIKey(c.CredentialPath())
	if err != nil {
		return "", "", err
	}
	return key, SourceFile, nil
}

// ReadAPIKey reads a key file. A missing or blank file yields ErrNoAPIKey.
func ReadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoAPIKey, path)
		}
		return "", fmt.Errorf("reading API key file %s: %w", path, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoAPIKey, path)
	}
	return key, nil
}

// WriteAPIKey persists key to path with owner-only permissions.
func WriteAPIKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: refusing to save an empty key", ErrNoAPIKey)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing API key file %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("securing API key file %s: %w", path, err)
	}
	return nil
}
