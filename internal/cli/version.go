package cli

import (
	"runtime/debug"
	"strings"
)

const (
	devVersion         = "dev"
	goDevelMainVersion = "(devel)"
	vcsRevisionKey     = "vcs.revision"
	vcsModifiedKey     = "vcs.modified"
)

var readBuildInfo = debug.ReadBuildInfo

// resolvedVersion prefers the linker injected version, then the module
// version, then the VCS revision recorded in the build.
func resolvedVersion(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && trimmed != devVersion {
		return trimmed
	}

	info, ok := readBuildInfo()
	if ok && info != nil {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != goDevelMainVersion {
			return v
		}
		for _, setting := range info.Settings {
			if setting.Key != vcsRevisionKey {
				continue
			}
			revision := setting.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
			if isDirty(info.Settings) {
				revision += "-dirty"
			}
			return revision
		}
	}
	return devVersion
}

func isDirty(settings []debug.BuildSetting) bool {
	for _, setting := range settings {
		if setting.Key == vcsModifiedKey {
			return strings.EqualFold(setting.Value, "true")
		}
	}
	return false
}
