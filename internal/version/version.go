// Package version carries build metadata, set at link time with
// -ldflags "-X github.com/banshee-data/groomers/internal/version.Version=...".
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String is the version line printed by -version and recorded with every
// run.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
