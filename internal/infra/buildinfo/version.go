package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X". Commit and BuildTime fall back to the VCS stamp
// the go tool embeds when they are left unset.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info is the build description reported by /health and --version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build information.
func Get() Info {
	once.Do(func() {
		info = Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
		if bi, ok := debug.ReadBuildInfo(); ok {
			fillFromVCS(&info, bi.Settings)
		}
		if info.Commit == "" {
			info.Commit = "unknown"
		}
		if info.BuildTime == "" {
			info.BuildTime = "unknown"
		}
	})
	return info
}

func fillFromVCS(i *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				if len(s.Value) > 12 {
					s.Value = s.Value[:12]
				}
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// String returns "version (commit) built at time".
func String() string {
	i := Get()
	s := i.Version + " (" + i.Commit
	if i.Modified {
		s += "-dirty"
	}
	return s + ") built at " + i.BuildTime
}

// UserAgent identifies a tokgate component in outbound HTTP calls.
func UserAgent(component string) string {
	return component + "/" + Version
}
