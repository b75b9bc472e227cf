package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the application configuration, loaded once at startup. The
// database section is read a single time when the first engine is built and
// never re-read; only the log level is hot-reloadable.
type Config struct {
	Database Database `yaml:"database"`
	Log      Log      `yaml:"log"`
	Queue    Queue    `yaml:"queue"`
}

// Database configures the connection registry.
type Database struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// PoolSize is the connection pool size per engine.
	PoolSize int `yaml:"pool_size"`
	// PoolRecycle is the maximum age of a pooled connection.
	PoolRecycle Duration `yaml:"pool_recycle"`
}

// Log configures the zerolog output.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Queue configures the background task queue.
type Queue struct {
	Workers       int     `yaml:"workers"`
	Size          int     `yaml:"size"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: Database{
			Path:        "./taskmill.db",
			PoolSize:    10,
			PoolRecycle: Duration(time.Hour),
		},
		Log: Log{
			Level:      "info",
			File:       "taskmill.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Queue: Queue{
			Workers:       4,
			Size:          64,
			RatePerSecond: 10,
		},
	}
}

// Load reads the YAML config at path, layering it over the defaults. A
// missing file yields the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Duration is a time.Duration that unmarshals from YAML strings like "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
