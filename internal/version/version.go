// Package version holds the build identity reported by /api/version and the
// daemon's startup banner. The variables are overridden at release time with
// -ldflags "-X .../internal/version.Version=... ".
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
