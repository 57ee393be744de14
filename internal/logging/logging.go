// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger at info level with secret redaction.
func New() *slog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a stdout logger at the named level: debug, info,
// warn (or warning) and error. Unknown names mean info.
func NewWithLevel(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is NewWithLevel writing to w.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redact,
	}))
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		a.Value = slog.StringValue("[redacted]")
	}
	return a
}

// api_key, rpc tokens, database passwords and webhook secrets share these
// fragments.
func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	for _, frag := range []string{"token", "secret", "key", "pass"} {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
