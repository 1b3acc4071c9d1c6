// Package buildinfo holds version and build metadata stamped at
// compile time via ldflags, for the cmd/gdbus-send and
// cmd/gdbus-monitor "version" output.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

// startTime records when the process started.
var startTime = time.Now()

// Info returns compile-time and platform metadata, appropriate for
// "gdbus-send -version" output.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"git_branch": GitBranch,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// Uptime returns the duration since process start.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String returns a one-line summary for logging and "-version" flags.
func String() string {
	return fmt.Sprintf("gdbus %s (%s@%s) built %s", Version, GitCommit, GitBranch, BuildTime)
}

// UserAgent is unused by the bus transport (D-Bus has no user-agent
// concept) but is kept for any HTTP-adjacent tooling built on top of
// this module, following the teacher's convention of a stable
// identifying string for outgoing requests.
func UserAgent() string {
	return fmt.Sprintf("gdbus/%s", Version)
}
