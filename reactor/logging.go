package reactor

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logger type used throughout this package. It is
// a direct alias for zerolog.Logger rather than a custom interface: the
// retrieval pack's own zerolog adapter (logiface-zerolog) demonstrates
// zerolog as the concrete backend for this kind of component, and using it
// directly avoids an extra indirection layer with no reactor-specific
// behavior to justify it.
type Logger = zerolog.Logger

// NewConsoleLogger returns a human-readable logger writing to stderr, at
// or above level. Intended for local development and tests; production
// callers typically construct their own zerolog.Logger (JSON to stdout,
// sampling, hooks) and pass it via WithLogger.
func NewConsoleLogger(level zerolog.Level) Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
