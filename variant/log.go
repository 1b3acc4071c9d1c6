package variant

import (
	"context"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// LevelTrace sits below slog.LevelDebug and is reserved for
// wire-level forensics: raw flatten/store sizes, zeros-buffer growth.
// Mirrors the ambient logging convention used throughout this module.
const LevelTrace = slog.Level(-8)

// logger is the package-wide sink for trace-level diagnostics. Nil by
// default (silent); callers that want flatten/store tracing call
// SetLogger. This is deliberately package-global rather than threaded
// through every Value: the engine's public contract (spec.md §4.1) has
// no room for a logger parameter on every call.
var logger *slog.Logger

// SetLogger installs a logger for trace-level diagnostics emitted by
// Flatten and Store (buffer sizes, zeros-buffer growth). Passing nil
// disables tracing.
func SetLogger(l *slog.Logger) {
	logger = l
}

func tracef(msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

func humanSize(n int) string {
	return humanize.Bytes(uint64(n))
}
