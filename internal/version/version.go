// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

// Set at build time, e.g.
//
//	go build -ldflags "-X responselog/internal/version.Version=v1.2.0" ./cmd/responselog
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("responselog %s (commit %s, built %s)", Version, Commit, Date)
}
