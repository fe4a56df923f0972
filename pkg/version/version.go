// Package version reports the bulletinsearch build. Release builds set the
// variables with ldflags:
//
//	-X github.com/Aman-CERP/bulletinsearch/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/bulletinsearch/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/bulletinsearch/pkg/version.Date=$(DATE)
//
// Builds made with `go install` fall back to the module and VCS data the
// toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const devVersion = "dev"

var (
	Version = devVersion
	Commit  = "unknown"
	// Date is RFC3339.
	Date = "unknown"

	GoVersion = runtime.Version()
)

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(bi)
	}
}

// fillFromBuildInfo replaces values that ldflags left at their defaults.
func fillFromBuildInfo(bi *debug.BuildInfo) {
	if Version == devVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// BuildInfo is the JSON form served by `version --format json` and /healthz.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the one-line description printed by `version`.
func String() string {
	return fmt.Sprintf("bulletinsearch %s (commit: %s, built: %s, go: %s, %s/%s)",
		Version, Commit, Date, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// Short returns the version alone.
func Short() string {
	return Version
}

// IsDev reports whether this is an unversioned development build.
func IsDev() bool {
	return Version == devVersion
}

func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// UserAgent returns the User-Agent sent to remote backends.
func UserAgent() string {
	return "bulletinsearch/" + Version
}
