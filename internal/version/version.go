// Package version reports the build identity of the coord binary.
package version

import "fmt"

// Commit and BuildTime are injected at build time through -ldflags; a binary
// built without them reports "unknown".
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the running build. Releases are cut from commits, so there
// is no semver component.
func String() string {
	return fmt.Sprintf("coord dev (commit: %s, built: %s)", shortCommit(), BuildTime)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
