// Package config provides environment-driven configuration for Flowfile
// runtimes: a small getEnv/godotenv idiom covering the execution,
// history, and logging concerns a lazy graph engine actually has.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration.
type Config struct {
	Execution ExecutionConfig
	History   HistoryConfig
	Logging   LoggingConfig
}

// ExecutionConfig holds run defaults read from the environment. Engine
// and the scheduler do not read it: run options are passed per run, and
// the memtable backend's expression cache size is fixed at 256.
type ExecutionConfig struct {
	MaxParallelism  int
	NodeTimeout     time.Duration
	ContinueOnError bool
	ExprCacheSize   int
}

// HistoryConfig controls undo/redo tracking defaults.
type HistoryConfig struct {
	TrackByDefault bool
	MaxDepth       int
}

// LoggingConfig controls the zerolog logger's output.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from the environment (and a .env file, if
// present), falling back to defaults tuned for local development.
func Load() (*Config, error) {
	godotenv.Load()
	return &Config{
		Execution: ExecutionConfig{
			MaxParallelism:  getEnvAsInt("FLOWFILE_MAX_PARALLELISM", 0),
			NodeTimeout:     getEnvAsDuration("FLOWFILE_NODE_TIMEOUT", 0),
			ContinueOnError: getEnvAsBool("FLOWFILE_CONTINUE_ON_ERROR", false),
			ExprCacheSize:   getEnvAsInt("FLOWFILE_EXPR_CACHE_SIZE", 256),
		},
		History: HistoryConfig{
			TrackByDefault: getEnvAsBool("FLOWFILE_TRACK_HISTORY", true),
			MaxDepth:       getEnvAsInt("FLOWFILE_HISTORY_MAX_DEPTH", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("FLOWFILE_LOG_LEVEL", "info"),
			Format: getEnv("FLOWFILE_LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
