// Package version holds build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/kailas-cloud/catalogq/internal/version.Version=v1.2.0"
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String is the one-line build description printed by the CLI.
func String() string {
	return fmt.Sprintf("catalogq %s (commit %s, built %s)", Version, Commit, Date)
}
