// Package version provides build version information for the application.
// Kept separate so that cli and the M2M client can both stamp the version without an import cycle.
package version

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.3.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// UserAgent returns the User-Agent sent with every M2M and fetch request.
func UserAgent() string {
	return "scenefetch/" + Version
}
