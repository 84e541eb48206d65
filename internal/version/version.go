// Package version reports the squadron release.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is set at build time with -ldflags "-X .../version.Commit=<sha>".
var Commit = ""

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the version with the commit appended when known.
func String() string {
	if Commit == "" {
		return Get()
	}
	return Get() + " (" + Commit + ")"
}
