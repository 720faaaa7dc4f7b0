// Package version reports build information for pagemind.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used in version strings and MCP handshakes.
const Name = "pagemind"

// Version defaults to dev and is set with
// -ldflags "-X github.com/Aman-CERP/pagemind/pkg/version.Version=1.2.3".
var Version = "dev"

// Commit and Date are set through ldflags the same way.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a one-line version string.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, Commit, Date, runtime.Version())
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
