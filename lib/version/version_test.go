// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func setBuildVars(t *testing.T, commit, dirty, buildTime, version string) {
	t.Helper()
	oldCommit, oldDirty, oldTime, oldVersion := GitCommit, GitDirty, BuildTime, Version
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = oldCommit, oldDirty, oldTime, oldVersion
	})
	GitCommit, GitDirty, BuildTime, Version = commit, dirty, buildTime, version
}

func TestInfo(t *testing.T) {
	setBuildVars(t, "abc1234", "false", "2026-01-02T03:04:05Z", "1.2.3")
	if got, want := Info(), "1.2.3 (abc1234, 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got, want := Info(), "1.2.3 (abc1234-dirty, 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestFull(t *testing.T) {
	setBuildVars(t, "abc1234", "false", "unknown", "1.2.3")
	full := Full()
	if !strings.HasPrefix(full, Info()) {
		t.Errorf("Full() = %q, want prefix %q", full, Info())
	}
	if !strings.Contains(full, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q, want platform", full)
	}
}

func TestShort(t *testing.T) {
	setBuildVars(t, "unknown", "false", "unknown", "9.9.9")
	if Short() != "9.9.9" {
		t.Errorf("Short() = %q", Short())
	}
	// Without an injected commit Info still produces a commit field.
	if !strings.HasPrefix(Info(), "9.9.9 (") {
		t.Errorf("Info() = %q", Info())
	}
}

func TestStampedBuild(t *testing.T) {
	build := stampedBuild([]debug.BuildSetting{
		{Key: "GOARCH", Value: "amd64"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
	})
	want := Build{Commit: "0123456789ab", Dirty: true, Time: "2026-03-04T05:06:07Z"}
	if build != want {
		t.Errorf("stampedBuild = %+v, want %+v", build, want)
	}

	if short := stampedBuild([]debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}); short.Commit != "abc" {
		t.Errorf("short revision = %q", short.Commit)
	}
}

func TestBuildString(t *testing.T) {
	build := Build{Version: "1.0.0", Commit: "abc1234", Time: "unknown"}
	if got, want := build.String(), "1.0.0 (abc1234, unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	build.Dirty = true
	if got, want := build.String(), "1.0.0 (abc1234-dirty, unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
