// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version carries build metadata injected through -ldflags.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "v0.1.0-dev"
	// Commit is the git short hash of the build.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
