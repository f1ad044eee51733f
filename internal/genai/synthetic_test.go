package genai

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic_Deterministic(t *testing.T) {
	gen := Synthetic{Width: 64, Height: 64}
	req := Request{Prompt: "p", Temperature: 0.5, Images: []Image{{MIME: "image/png", Data: []byte{1, 2}}}}

	a, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	req.Temperature = 0.55
	c, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, c.Data, "temperature must change the rendering")

	cfg, err := png.DecodeConfig(bytes.NewReader(a.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, "image/png", a.MIME)
}

func TestSynthetic_LatencyHonorsContext(t *testing.T) {
	gen := Synthetic{Latency: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gen.Generate(ctx, Request{Prompt: "p"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
