// Package logging configures the process-wide slog logger used across the
// daemon and CLI commands. Logs are JSON-encoded on stderr so stdout stays
// reserved for the JSON-RPC wire protocol.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Setup installs a JSON slog handler writing to stderr at levelStr, and
// returns it as the new process-wide default logger. An unparsable level
// falls back to info rather than failing daemon startup.
func Setup(levelStr string) *slog.Logger {
	lvl, err := ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}
