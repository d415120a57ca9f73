package hat

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the default slog logger with a TextHandler,
// honoring HAT_LOG_LEVEL (DEBUG, WARN, ERROR; default INFO). Applications
// embedding one or more Indexes call this once at startup if they want
// HAT's default logging configuration instead of wiring their own
// slog.Handler; each Index then gets its own bound logger from NewLogger
// so log lines from concurrent Indexes in the same process stay
// distinguishable without every call site repeating an instance field.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("HAT_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel overrides the level configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// NewLogger returns the default logger pre-bound to instance, so every
// line it emits carries "instance" without the caller repeating it on
// every Debug/Info/Warn/Error call. Index keeps one of these per
// constructed or loaded tree.
func NewLogger(instance InstanceID) *slog.Logger {
	return slog.Default().With("instance", instance.String())
}
