// Package version contains the build version, settable via ldflags.
package version

// Version is the symbolic version of this build.
var Version = "v0.1.0-dev"
