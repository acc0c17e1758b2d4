package observability

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/config"
)

// NewLogger builds the root zerolog logger from configuration.
// Components derive their own loggers via With().Str("component", ...).
func NewLogger(cfg config.Logger) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Prettier {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}
