// Package version provides version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const (
	// Version is the current version of testops-mcp
	Version = "0.2.0"

	// ServerName is the name reported in the MCP initialize handshake
	ServerName = "playwright-automation-mcp"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// GetVersion returns the current version
func GetVersion() string {
	return Version
}

// GetInfo returns version details including the VCS revision when the binary
// was built from a checkout
func GetInfo() Info {
	info := Info{
		Version:   Version,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders the info on one line
func (i Info) String() string {
	s := fmt.Sprintf("testops-mcp version %s (%s)", i.Version, i.GoVersion)
	if i.Revision != "" {
		rev := i.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		s += " " + rev
		if i.Modified {
			s += "-dirty"
		}
	}
	return s
}
