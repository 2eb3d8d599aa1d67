package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/janhq/companion-relay/internal/config"
)

// New constructs a zerolog logger from the service configuration.
// Unknown levels or formats fall back to info/json so startup never fails on logging.
func New(cfg *config.Config) zerolog.Logger {
	log, err := NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log, _ = NewWithWriter(os.Stdout, "info", "json")
		log.Warn().Err(err).Str("level", cfg.LogLevel).Str("format", cfg.LogFormat).Msg("invalid log settings, using defaults")
	}
	return log.With().Str("service", cfg.ServiceName).Str("node_id", cfg.NodeID).Logger()
}

// NewWithWriter constructs a zerolog logger based on level and format configuration.
func NewWithWriter(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var writer zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		writer = zerolog.New(out).With().Timestamp().Logger()
	case "console":
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		writer = zerolog.New(consoleWriter).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	zerolog.SetGlobalLevel(lvl)
	logger := writer.Level(lvl)
	zlog.Logger = logger

	return logger, nil
}
