// Package config loads cartctl settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/statecart/statecart/logger"
	"github.com/statecart/statecart/statestore"
	"github.com/statecart/statecart/telemetry"
)

const defaultEnvFile = ".env"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned when parsed values are out of range.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the full cartctl configuration.
type Config struct {
	Log       LogConfig
	Store     statestore.Config
	Telemetry telemetry.Config
	HTTP      HTTPConfig
	Simulate  SimulateConfig

	// MetricsAddr serves Prometheus metrics at /metrics when set.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	JSON   bool   `env:"LOG_JSON"   envDefault:"false"`
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Output string `env:"LOG_OUTPUT" envDefault:"stderr"`

	// File settings apply when Output is "file".
	File           string `env:"LOG_FILE"`
	FileMaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB"  envDefault:"100"`
	FileMaxBackups int    `env:"LOG_FILE_MAX_BACKUPS"  envDefault:"3"`
	FileMaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"28"`
}

// HTTPConfig configures the cart HTTP API.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	// RateLimit is the sustained number of trigger requests per second. Zero
	// disables rate limiting.
	RateLimit float64 `env:"HTTP_RATE_LIMIT" envDefault:"50"`
	RateBurst int     `env:"HTTP_RATE_BURST" envDefault:"100"`
}

// SimulateConfig configures the simulate command.
type SimulateConfig struct {
	Workers int `env:"SIMULATE_WORKERS" envDefault:"8"`
	// Rate caps triggers per second. Zero means unlimited.
	Rate float64 `env:"SIMULATE_RATE" envDefault:"0"`
}

// Load reads the given .env files, or ./.env if present when none are
// given, then parses the environment. Variables already set in the
// environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		files = []string{defaultEnvFile}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files %s: %w", strings.Join(files, ", "), err)
	}

	return nil
}

// Validate checks value ranges that tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Simulate.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: SIMULATE_WORKERS must be at least 1", ErrInvalidConfig))
	}

	if c.Simulate.Rate < 0 {
		errs = append(errs, fmt.Errorf("%w: SIMULATE_RATE must not be negative", ErrInvalidConfig))
	}

	if c.HTTP.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: HTTP_RATE_LIMIT must not be negative", ErrInvalidConfig))
	}

	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("%w: HTTP_RATE_BURST must be at least 1", ErrInvalidConfig))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	if strings.EqualFold(c.Log.Output, "file") && c.Log.File == "" {
		errs = append(errs, fmt.Errorf("%w: LOG_FILE is required when LOG_OUTPUT is file", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// LoggerOptions turns the log settings into logger options. The returned
// closer releases a log file, if one was opened.
func (c LogConfig) LoggerOptions(subsystem string) (logger.Options, io.Closer, error) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return logger.Options{}, nil, err
	}

	opts := logger.Options{
		Subsystem:   subsystem,
		JSON:        c.JSON,
		MinLevel:    level,
		LegacyLevel: slog.LevelInfo,
	}

	if strings.EqualFold(c.Output, "file") {
		out, err := logger.NewFileOutput(logger.FileOptions{
			Path:       c.File,
			MaxSizeMB:  c.FileMaxSizeMB,
			MaxBackups: c.FileMaxBackups,
			MaxAgeDays: c.FileMaxAgeDays,
		})
		if err != nil {
			return logger.Options{}, nil, err
		}

		opts.Output = out

		return opts, out, nil
	}

	out, err := logger.ParseOutput(c.Output)
	if err != nil {
		return logger.Options{}, nil, err
	}

	opts.Output = out

	return opts, nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
