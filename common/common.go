// Package common holds identifiers shared across parley binaries.
package common

// PackageName is the canonical name used for metrics namespacing and logging.
const PackageName = "parley"

// Version is set at build time via -ldflags.
var Version = "dev"
