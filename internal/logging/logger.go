package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. level is debug, info, warn or error
// (anything else means info). format "json" writes raw JSON lines, as Lambda
// expects; any other value uses the human-readable console writer.
func Init(level, format string) {
	InitTo(os.Stderr, level, format)
}

// InitTo is Init writing to w.
func InitTo(w io.Writer, level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name onto a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
