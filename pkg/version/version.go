// Package version exposes build metadata stamped into the ommsai binary.
package version

// Build metadata, overridden at link time via
// -ldflags "-X github.com/ramdhavepreetam/OmmSai/pkg/version.Version=...".
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the short git hash the binary was built from.
	Commit = "<unknown>"

	// Date is the UTC build timestamp.
	Date = "<unknown>"
)
