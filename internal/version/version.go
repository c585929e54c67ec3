// Package version exposes build information injected at link time:
//
//	go build -ldflags "-X github.com/HerbHall/hsnap/internal/version.Version=1.2.0 \
//	  -X github.com/HerbHall/hsnap/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the version string, e.g. "1.2.0".
func Short() string { return Version }

// Info returns a one-line description of the build.
func Info() string {
	commit := GitCommit
	if commit == "unknown" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	return fmt.Sprintf("hsnap %s (commit %s, built %s, %s, %s/%s)",
		Version, commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with HTTP deliveries.
func UserAgent() string { return "hsnap/" + Version }

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}
