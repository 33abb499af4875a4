package version

import "runtime"

// Variables populated via -ldflags at build time.
// Example:
//   go build -ldflags "-X 'cfpanel/internal/version.Version=1.0.0' -X 'cfpanel/internal/version.Commit=$(git rev-parse --short HEAD)' -X 'cfpanel/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)'"
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Full returns a human friendly version string.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}

// Info is the payload of /api/v1/version and `cfpanel version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
}
