// Package buildinfo reports the software version recorded in audit entries.
package buildinfo

import "runtime/debug"

// Version is set at link time with -ldflags "-X wsideid/internal/buildinfo.Version=...".
var Version = "development"

// String returns Version, or the module version embedded by `go install`
// when no link-time version was set.
func String() string {
	if Version != "development" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return Version
}
