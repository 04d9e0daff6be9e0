// Build information injected via ldflags, e.g.
// `-X github.com/nobletooth/slotcache/pkg/utils.Version=v0.3.1`.
// CAUTION: This file shouldn't be removed or else flags wouldn't be set properly.

package utils

import (
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/mod/semver"
)

const unknownBuildValue = "unknown"

var (
	TestMode   string // Should be true when running tests.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	// If build info is not set, make that clear.
	if Version == "" {
		Version = unknownBuildValue
	}
	if Commit == "" {
		Commit = unknownBuildValue
	}
	if BuildTime == "" {
		BuildTime = unknownBuildValue
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false", "error", err)
		}
	}
}

// IsReleaseVersion reports whether `version` is a semantic version without a pre-release suffix.
// Local builds carry "unknown" and are never considered releases.
func IsReleaseVersion(version string) bool {
	return semver.IsValid(version) && semver.Prerelease(version) == "" && semver.Build(version) == ""
}
