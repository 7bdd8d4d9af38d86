// Package logger configures the global zerolog logger
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Init sets up the global logger with human-readable console output on
// stderr at the given level ("trace", "debug", "info", "warn", "error").
// An empty or unknown level falls back to info.
//
// Example usage:
//
//	logger.Init(cfg.Output.LogLevel) <- inside main()
func Init(level string) {
	InitWithWriter(os.Stderr, level)
}

// InitWithWriter is Init with an explicit destination
func InitWithWriter(w io.Writer, level string) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w}).With().Caller().Logger()

	logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || logLevel == zerolog.NoLevel {
		if level != "" {
			log.Warn().Str("level", level).Msg("Unknown log level - defaulting to info")
		}
		logLevel = zerolog.InfoLevel
	}

	// Apply the log level globally
	zerolog.SetGlobalLevel(logLevel)
	log.Debug().Str("level", logLevel.String()).Msg("Debug logging enabled")
}
