// Package genai abstracts the external generative image service.
//
// The orchestration core only depends on the Generator interface: a single
// opaque call with unbounded latency that either returns an image artifact,
// returns no artifact at all (nil, nil), or fails. Two implementations are
// provided:
//   - Client talks to the Gemini generateContent REST endpoint
//   - Synthetic renders deterministic PNGs locally for dry runs and tests
package genai

import (
	"context"
	"strings"
)

// DefaultModel is the Gemini model that supports interleaved text and image output.
const DefaultModel = "gemini-2.0-flash-exp-image-generation"

// Default sampling parameters sent alongside the per-request temperature.
const (
	DefaultTopK            = 32
	DefaultTopP            = 1.0
	DefaultMaxOutputTokens = 2048
)

// Image is an encoded conditioning input sent with the prompt.
type Image struct {
	// Path is where the image was loaded from (informational only).
	Path string

	// MIME is the content type, for example "image/png".
	MIME string

	// Data holds the encoded image bytes.
	Data []byte
}

// Request is a normalized generation request.
type Request struct {
	// RequestID correlates the call in logs.
	RequestID string

	// Prompt is the instruction text.
	Prompt string

	// Images are the conditioning inputs, in order.
	Images []Image

	// Temperature is the creativity parameter for this call.
	Temperature float64

	// TopK, TopP and MaxOutputTokens fall back to the package defaults when zero.
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// Artifact is the image produced by a generation call.
type Artifact struct {
	// MIME is the content type reported by the service.
	MIME string

	// Data holds the encoded image bytes.
	Data []byte

	// Texts collects any text parts returned alongside the image.
	Texts []string
}

// Empty reports whether the artifact carries no usable image bytes.
func (a *Artifact) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Generator is the contract implemented by every generation backend.
//
// Implementations return (nil, nil) when the call succeeded but produced no
// image; callers treat that as "no artifact returned".
type Generator interface {
	Generate(ctx context.Context, req Request) (*Artifact, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Artifact, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Artifact, error) {
	return f(ctx, req)
}

// ExtensionForMIME returns the file extension (without dot) for an image MIME type.
func ExtensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

func (r Request) topK() int {
	if r.TopK > 0 {
		return r.TopK
	}
	return DefaultTopK
}

func (r Request) topP() float64 {
	if r.TopP > 0 {
		return r.TopP
	}
	return DefaultTopP
}

func (r Request) maxOutputTokens() int {
	if r.MaxOutputTokens > 0 {
		return r.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}
