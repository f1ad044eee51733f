// Package inputs loads and validates the conditioning images for a batch.
package inputs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"strings"

	"github.com/rshade/tryon/internal/genai"
)

// DefaultMaxBytes matches the inline request size limit of the Gemini API.
const DefaultMaxBytes = 20 << 20

// Common loader errors.
var (
	ErrEmptyPath   = errors.New("image path is required")
	ErrNotAFile    = errors.New("image path is a directory")
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrUnsupported = errors.New("unsupported image format")
)

// Loader reads images from the local filesystem.
type Loader struct {
	// MaxBytes caps the file size; zero uses DefaultMaxBytes.
	MaxBytes int64
}

// NewLoader returns a Loader with the default size limit.
func NewLoader() *Loader {
	return &Loader{MaxBytes: DefaultMaxBytes}
}

// Load reads the file at path, verifies it decodes as an image and returns it
// with its MIME type.
func (l *Loader) Load(ctx context.Context, path string) (genai.Image, error) {
	if err := ctx.Err(); err != nil {
		return genai.Image{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return genai.Image{}, ErrEmptyPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return genai.Image{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return genai.Image{}, fmt.Errorf("%s: %w", path, ErrNotAFile)
	}
	if info.Size() > l.maxBytes() {
		return genai.Image{}, fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return genai.Image{}, fmt.Errorf("read %s: %w", path, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return genai.Image{}, fmt.Errorf("%s: %w: %v", path, ErrUnsupported, err)
	}

	return genai.Image{
		Path: path,
		MIME: "image/" + format,
		Data: data,
	}, nil
}

func (l *Loader) maxBytes() int64 {
	if l == nil || l.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return l.MaxBytes
}
