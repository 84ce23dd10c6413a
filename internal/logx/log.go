// Package logx holds the logger shared by the invoker binaries and packages.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger used throughout the project.
var Log = log.Logger

// Configure sets the global log level. Output stays human readable on stderr
// unless LOG_FORMAT=json, which a sidecar usually wants.
func Configure(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
	SetOutput(os.Stderr, strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"))
}

// SetOutput redirects the shared logger to w, as JSON lines or console text.
func SetOutput(w io.Writer, json bool) {
	if json {
		Log = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	Log = log.Output(zerolog.ConsoleWriter{Out: w})
}

// Component returns the shared logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// parseLevel converts a string to a zerolog level.
// Accepts: all, trace, debug, info, warn, warning, error, fatal, none, off.
// Unknown values default to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
