// Package version exposes the version of this build.
package version

// Version is the current version of the training driver. Release builds
// override this value through the linker.
var Version = "0.1.0-dev"
