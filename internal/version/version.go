// Package version exposes build metadata set via ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/docwiki/internal/version.Version=v0.3.0"
package version

import "fmt"

// Version is the release version.
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version line printed by `docwiki version`.
func String() string {
	return fmt.Sprintf("docwiki %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
