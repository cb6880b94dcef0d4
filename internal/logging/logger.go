// Package logging builds the root zerolog logger. Components derive
// their own loggers from it with a component field.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates the root logger. level is one of debug, info, warn, error;
// anything else falls back to info. When jsonFormat is false the output
// is the human-readable console format.
func New(level string, jsonFormat bool) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if jsonFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(parsed).With().Timestamp().Logger()
}
