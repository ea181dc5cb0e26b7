// Package version carries the build version stamped in at link time.
package version

// Version is set via -ldflags at build time; "development" otherwise.
var Version = "development"

func String() string {
	return Version
}
