package version

// Version information, overridden at build time with -ldflags.
var (
	// Version is the current version of wpdebuglog
	Version = "0.3.0-dev"
	// BuildDate is the date when the binary was built
	BuildDate = "undefined"
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "undefined"
)

// VersionInfo returns formatted version information
func VersionInfo() string {
	return "wpdebuglog version " + Version + " (build: " + BuildDate + ", commit: " + CommitHash + ")"
}
