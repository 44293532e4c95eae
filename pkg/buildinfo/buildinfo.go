// Package buildinfo exposes the version stamped into the binary at build time.
package buildinfo

import (
	"encoding/json"
	"runtime"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.Commit=b806fe7
// -X github.com/otherjamesbrown/minutes-cli/pkg/buildinfo.BuildTime=2026-02-07T10:30:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a binary.
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// Get returns build info for the named binary.
func Get(name string) Info {
	return Info{
		Name:      name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v0.3.0 (b806fe7, 2026-02-07T10:30:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// JSON returns the build info of name as indented JSON.
func JSON(name string) ([]byte, error) {
	return json.MarshalIndent(Get(name), "", "  ")
}
