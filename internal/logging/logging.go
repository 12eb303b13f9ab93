// Package logging builds the zerolog logger Flowfile's components are
// constructed with. Every constructor here takes a zerolog.Logger
// explicitly rather than reaching for zerolog's package-level global
// logger, so graphs and schedulers never share hidden mutable state.
package logging

import (
	"os"

	"github.com/flowfile/flowfile/internal/config"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger from cfg. Format "console" gets
// zerolog's human-readable ConsoleWriter; anything else gets newline
// JSON.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests and
// embedders that don't want Flowfile's log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
