// Package version holds build information injected at link time, e.g.
// go build -ldflags "-X bugtriage/pkg/version.Version=v1.2.3".
package version

//nolint:gochecknoglobals // set via -ldflags
var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)
