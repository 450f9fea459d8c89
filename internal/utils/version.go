package utils

import (
	"fmt"
	"io"
	"runtime/debug"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string
	GoVersion string
	Revision  string
	Dirty     bool
}

// ReadBuildInfo returns the module version and VCS state embedded by the Go
// toolchain.
func ReadBuildInfo() BuildInfo {
	b := BuildInfo{Version: "unknown", GoVersion: "unknown", Revision: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.Version = info.Main.Version
	if b.Version == "" || b.Version == "(devel)" {
		b.Version = "dev"
	}
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// Print writes the build info of binary name to w.
func (b BuildInfo) Print(w io.Writer, name string) {
	_, _ = fmt.Fprintf(w, "%s %s\n", name, b.Version)
	_, _ = fmt.Fprintf(w, "  Go version: %s\n", b.GoVersion)
	_, _ = fmt.Fprintf(w, "  Revision:   %s\n", b.Revision)
	if b.Dirty {
		_, _ = fmt.Fprintf(w, "  Modified:   true\n")
	}
}
