// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time, for example:
//
//	go build -ldflags "-X github.com/rshade/tryon/pkg/version.version=1.2.3"
//
//nolint:gochecknoglobals // ldflags targets
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// GetVersion returns the semantic version.
func GetVersion() string {
	return version
}

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns the build timestamp.
func GetBuildDate() string {
	return buildDate
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("tryon %s (commit %s, built %s, %s)", version, gitCommit, buildDate, runtime.Version())
}
