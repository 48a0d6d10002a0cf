// Package config loads postd settings.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, POSTD_*
// environment variables, command-line flags (applied by the CLI).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/postd/internal/store"
)

// Environment variables read by ApplyEnv.
const (
	EnvSocket   = "POSTD_SOCKET"
	EnvDatabase = "POSTD_DATABASE"
	EnvDriver   = "POSTD_DRIVER"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds everything needed to run the server.
type Config struct {
	// Socket is the unix domain socket path to listen on.
	Socket string `yaml:"socket"`

	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// Driver is the database/sql driver name: "sqlite3" or "sqlite".
	Driver string `yaml:"driver"`

	// BusyTimeout bounds how long a write waits for the database lock.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// QueueCapacity bounds the writer's mailbox.
	QueueCapacity int `yaml:"queue_capacity"`

	// RequestTimeout bounds how long an HTTP request waits for its write.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Socket:         "/tmp/benchmark.sock",
		Database:       "./db.sqlite",
		Driver:         store.DriverCGo,
		BusyTimeout:    store.DefaultBusyTimeout,
		QueueCapacity:  1024,
		RequestTimeout: 30 * time.Second,
		LogFormat:      LogFormatText,
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty) and then the environment. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// loadFile decodes a YAML file over c. Keys absent from the file keep their
// current values; unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// ApplyEnv overrides fields from POSTD_* variables. lookup is normally
// os.LookupEnv. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSocket); ok && v != "" {
		c.Socket = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvDriver); ok && v != "" {
		c.Driver = v
	}
}

// Validate checks that the configuration can be used to start the server.
func (c Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket is required")
	}

	if c.Database == "" {
		return fmt.Errorf("database is required")
	}

	switch c.Driver {
	case store.DriverCGo, store.DriverPure:
	default:
		return fmt.Errorf("unsupported driver %q (want %q or %q)", c.Driver, store.DriverCGo, store.DriverPure)
	}

	if c.BusyTimeout <= 0 {
		return fmt.Errorf("busy_timeout must be positive, got %s", c.BusyTimeout)
	}

	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log_format %q (want %q or %q)", c.LogFormat, LogFormatText, LogFormatJSON)
	}

	return nil
}
