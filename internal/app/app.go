package app

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

var Version = "0.4.0"

var Info = map[string]any{
	"version": Version,
}

// Init loads every config layer and the logger, call once before modules
func Init(confs []string) {
	initConfig(confs)
	initLogger()

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Msg("framepump")
	Logger.Debug().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}
}

// VersionString like: framepump version 0.4.0 (1a2b3c4): 2024-05-01 10:00:00 linux/arm64
func VersionString() string {
	var revision string
	var vcsTime time.Time

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
				if len(revision) > 7 {
					revision = revision[:7]
				}
				revision = " (" + revision + ")"
			case "vcs.time":
				vcsTime, _ = time.Parse(time.RFC3339, setting.Value)
			}
		}
	}

	s := "framepump version " + Version + revision
	if !vcsTime.IsZero() {
		s += ": " + vcsTime.Local().Format(time.DateTime)
	}
	return s + " " + runtime.GOOS + "/" + runtime.GOARCH
}
