package job

import "errors"

// Job failure taxonomy. Cancellation is a state, not an error.
var (
	// ErrMissingCredential means no API credential was supplied.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrInputUnavailable means an input image could not be loaded.
	ErrInputUnavailable = errors.New("input image unavailable")

	// ErrServiceInvocation means the generation call failed or timed out.
	ErrServiceInvocation = errors.New("generation service invocation failed")

	// ErrNoArtifactReturned means the call succeeded without a usable image.
	ErrNoArtifactReturned = errors.New("no artifact returned")

	// ErrArtifactWrite means the generated image could not be persisted.
	ErrArtifactWrite = errors.New("artifact write failed")
)
