package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"quantity-pipeline/pkg/utils"
)

// Config is the application configuration shared by the CLI and the API.
type Config struct {
	Addr             string   `yaml:"addr" env:"QUANTITIES_ADDR"`
	DBPath           string   `yaml:"db_path" env:"QUANTITIES_DB_PATH"`
	OutputDir        string   `yaml:"output_dir" env:"QUANTITIES_OUTPUT_DIR"`
	Locale           string   `yaml:"locale" env:"QUANTITIES_LOCALE"`
	ConvertMMToM     bool     `yaml:"convert_mm_to_m" env:"QUANTITIES_CONVERT_MM_TO_M"`
	MillimeterFields []string `yaml:"millimeter_fields" env:"QUANTITIES_MILLIMETER_FIELDS" envSeparator:","`
	Workers          int      `yaml:"workers" env:"QUANTITIES_WORKERS"`
	JobTimeout       string   `yaml:"job_timeout" env:"QUANTITIES_JOB_TIMEOUT"`
	CacheSize        int      `yaml:"cache_size" env:"QUANTITIES_CACHE_SIZE"`
	LogLevel         string   `yaml:"log_level" env:"QUANTITIES_LOG_LEVEL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		DBPath:           "quantities.db",
		OutputDir:        "exports",
		Locale:           "de",
		ConvertMMToM:     false,
		MillimeterFields: []string{"Breite", "Auftritt Stufen", "Steigung Stufen"},
		Workers:          4,
		JobTimeout:       "5m",
		CacheSize:        256,
		LogLevel:         "info",
	}
}

// Load builds the configuration: defaults, then the yaml file at path (created
// with the defaults when missing), then a .env file in the working directory,
// then the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			slog.Info("creating default config", "path", path)
			if err := createDefault(path); err != nil {
				return Config{}, err
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", c.CacheSize)
	}
	if _, err := time.ParseDuration(c.JobTimeout); err != nil {
		return fmt.Errorf("job_timeout: %w", err)
	}
	if _, err := utils.ParseLocale(c.Locale); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Timeout returns the parsed job timeout.
func (c Config) Timeout() time.Duration {
	return utils.ParseDuration(c.JobTimeout)
}

// NumberLocale returns the parsed export locale, German when invalid.
func (c Config) NumberLocale() utils.Locale {
	loc, err := utils.ParseLocale(c.Locale)
	if err != nil {
		return utils.DefaultLocale
	}
	return loc
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger returns a JSON or text slog logger writing to w at the configured
// level.
func (c Config) NewLogger(w io.Writer, json bool) *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
