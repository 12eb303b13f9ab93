package logging

import (
	"testing"

	"github.com/flowfile/flowfile/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "debug", Format: "json"})
	require.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewFallsBackToInfoOnInvalidLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "not-a-level", Format: "json"})
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewSupportsConsoleFormat(t *testing.T) {
	log := New(config.LoggingConfig{Level: "info", Format: "console"})
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNopDiscardsOutput(t *testing.T) {
	log := Nop()
	require.Equal(t, zerolog.Disabled, log.GetLevel())
}
