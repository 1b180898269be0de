package config

import "fmt"

// Set with -ldflags, for example:
//
//	go build -ldflags "-X aircx/internal/config.version=1.2.3 \
//	    -X aircx/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/aircx
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the metadata for `aircx --version`.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, b.Commit, b.BuildTime)
}
