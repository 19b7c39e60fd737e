package config

// Linker-injected build metadata. Set at compile time via -ldflags, e.g.:
//
//	go build -ldflags "-X indexcover/internal/config.version=1.2.3 \
//	    -X indexcover/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X indexcover/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Defaults apply during local development when ldflags are not set.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
