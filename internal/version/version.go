// Package version holds the build version, overridden via -ldflags.
package version

// Version is the dockstrap release version.
var Version = "dev"
