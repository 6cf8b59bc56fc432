// Package version holds build-time stamps, set via -ldflags, that flow
// into C7's upload metadata (the x-cy-app-version header) and
// capture-cli's "version" command.
package version

var (
	// Version is the SDK build version.
	Version = "dev"
	// GitSHA is the git commit SHA this build was produced from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
