// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X. "unknown" means not injected.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Dirty   bool
	Time    string
}

// Current returns the injected build metadata. Fields that were not
// injected are taken from the VCS stamp the go command records when
// building from a checkout.
func Current() Build {
	build := Build{
		Version: Version,
		Commit:  GitCommit,
		Dirty:   GitDirty == "true",
		Time:    BuildTime,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	stamped := stampedBuild(info.Settings)
	if build.Commit == "unknown" && stamped.Commit != "" {
		build.Commit, build.Dirty = stamped.Commit, stamped.Dirty
	}
	if build.Time == "unknown" && stamped.Time != "" {
		build.Time = stamped.Time
	}
	return build
}

func stampedBuild(settings []debug.BuildSetting) Build {
	var build Build
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value[:min(len(setting.Value), 12)]
		case "vcs.modified":
			build.Dirty = setting.Value == "true"
		case "vcs.time":
			build.Time = setting.Value
		}
	}
	return build
}

// String formats the build as "1.2.3 (abc1234-dirty, 2026-01-02T03:04:05Z)".
func (b Build) String() string {
	commit := b.Commit
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.Time)
}

// Info returns the --version line.
func Info() string {
	return Current().String()
}

// Full is Info followed by the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}
