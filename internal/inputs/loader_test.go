package inputs

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string, encode func(*bytes.Buffer, image.Image) error) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	pngPath := writeImage(t, dir, "person.png", func(b *bytes.Buffer, img image.Image) error {
		return png.Encode(b, img)
	})
	jpgPath := writeImage(t, dir, "shirt.jpg", func(b *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(b, img, nil)
	})

	loader := NewLoader()

	t.Run("PNG", func(t *testing.T) {
		img, err := loader.Load(context.Background(), pngPath)
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MIME)
		assert.Equal(t, pngPath, img.Path)
		assert.NotEmpty(t, img.Data)
	})

	t.Run("JPEG", func(t *testing.T) {
		img, err := loader.Load(context.Background(), jpgPath)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", img.MIME)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := loader.Load(context.Background(), filepath.Join(dir, "nope.png"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := loader.Load(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := loader.Load(context.Background(), dir)
		assert.ErrorIs(t, err, ErrNotAFile)
	})

	t.Run("NotAnImage", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
		_, err := loader.Load(context.Background(), path)
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("TooLarge", func(t *testing.T) {
		small := &Loader{MaxBytes: 4}
		_, err := small.Load(context.Background(), pngPath)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := loader.Load(ctx, pngPath)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
