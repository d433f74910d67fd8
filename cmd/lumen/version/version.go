// Package version exposes the build version stamped into the lumen binary.
package version

import (
	"embed"
	"io"
	"runtime/debug"
	"strings"
)

//go:embed version.*
var versions embed.FS

// Version is the stamped release tag, or the module version when the
// binary was installed without a stamp.
var Version string = "unknown"

func init() {
	f, err := versions.Open("version.txt")
	if err != nil {
		// no stamped version file, fall back to the module build info
		inf, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		Version = inf.Main.Version
		return
	}
	s, err := io.ReadAll(f)
	if err != nil {
		return
	}
	Version = strings.TrimSpace(string(s))
}
