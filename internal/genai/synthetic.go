package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"time"
)

// Synthetic renders deterministic striped PNGs instead of calling a remote
// service. The same prompt, inputs and temperature always produce the same bytes.
type Synthetic struct {
	// Latency simulates the remote call duration. Zero returns immediately.
	Latency time.Duration

	// Width and Height default to 512 when zero.
	Width  int
	Height int
}

// Generate waits for Latency (or ctx cancellation) and renders an image.
func (s Synthetic) Generate(ctx context.Context, req Request) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	seedParts := []any{req.Prompt, strconv.FormatFloat(req.Temperature, 'f', 3, 64)}
	for _, img := range req.Images {
		seedParts = append(seedParts, len(img.Data), img.MIME)
	}
	seed := deterministicSeed(seedParts...)

	data, err := renderSyntheticImage(s.width(), s.height(), seed)
	if err != nil {
		return nil, fmt.Errorf("render synthetic image: %w", err)
	}
	return &Artifact{
		MIME:  "image/png",
		Data:  data,
		Texts: []string{"synthetic image " + seed},
	}, nil
}

func (s Synthetic) width() int {
	if s.Width > 0 {
		return s.Width
	}
	return 512
}

func (s Synthetic) height() int {
	if s.Height > 0 {
		return s.Height
	}
	return 512
}

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(16, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = Synthetic{}
