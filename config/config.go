// Package config loads harness settings from the environment and an
// optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/handshake"
	"github.com/machinefabric/tncharness-go/tnc"
)

// Config holds all harness configuration
type Config struct {
	Log     LogConfig       `yaml:"log"`
	Session SessionConfig   `yaml:"session"`
	Queue   exchange.Limits `yaml:"queue"`

	// TracePath receives a CBOR transcript when set
	TracePath string `yaml:"trace_path"`
	// MetricsPath receives a Prometheus text dump when set
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig holds per-connection settings
type SessionConfig struct {
	ConnectionID  uint32 `yaml:"connection_id"`
	CollectorID   uint32 `yaml:"collector_id"`
	VerifierID    uint32 `yaml:"verifier_id"`
	MaxRoundTrips int    `yaml:"max_round_trips"`
	HealthType    uint32 `yaml:"health_type"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from environment variables. If
// TNCH_CONFIG names a YAML file it is applied first and the environment
// overrides it.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TNCH_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Log.Level = getEnv("TNCH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("TNCH_LOG_FORMAT", cfg.Log.Format)

	cfg.Session.ConnectionID = getEnvUint32("TNCH_CONNECTION_ID", cfg.Session.ConnectionID)
	cfg.Session.CollectorID = getEnvUint32("TNCH_COLLECTOR_ID", cfg.Session.CollectorID)
	cfg.Session.VerifierID = getEnvUint32("TNCH_VERIFIER_ID", cfg.Session.VerifierID)
	cfg.Session.MaxRoundTrips = getEnvInt("TNCH_MAX_ROUND_TRIPS", cfg.Session.MaxRoundTrips)
	cfg.Session.HealthType = getEnvUint32("TNCH_HEALTH_TYPE", cfg.Session.HealthType)

	cfg.Queue.MaxMessages = getEnvInt("TNCH_MAX_MESSAGES", cfg.Queue.MaxMessages)
	cfg.Queue.MaxMessageSize = getEnvInt("TNCH_MAX_MESSAGE_SIZE", cfg.Queue.MaxMessageSize)
	cfg.Queue.MaxActiveBytes = getEnvInt("TNCH_MAX_QUEUE_BYTES", cfg.Queue.MaxActiveBytes)

	cfg.TracePath = getEnv("TNCH_TRACE_PATH", cfg.TracePath)
	cfg.MetricsPath = getEnv("TNCH_METRICS_PATH", cfg.MetricsPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the settings of a YAML file
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Log.Format)
	}
	if c.Session.MaxRoundTrips < 0 {
		return fmt.Errorf("max round trips must not be negative")
	}
	if c.Queue.MaxMessages < 0 || c.Queue.MaxMessageSize < 0 || c.Queue.MaxActiveBytes < 0 {
		return fmt.Errorf("queue limits must not be negative")
	}
	if c.Queue.MaxActiveBytes > 0 && c.Queue.MaxMessageSize > c.Queue.MaxActiveBytes {
		return fmt.Errorf("max message size %d exceeds max queue bytes %d", c.Queue.MaxMessageSize, c.Queue.MaxActiveBytes)
	}
	if c.Session.CollectorID >= uint32(tnc.PluginIDAny) || c.Session.VerifierID >= uint32(tnc.PluginIDAny) {
		return fmt.Errorf("plugin ids must be below %#x", uint32(tnc.PluginIDAny))
	}
	return nil
}

// Options converts the configuration into session options
func (c *Config) Options() handshake.Options {
	return handshake.Options{
		ConnectionID:  tnc.ConnectionID(c.Session.ConnectionID),
		CollectorID:   tnc.LocalID(c.Session.CollectorID),
		VerifierID:    tnc.LocalID(c.Session.VerifierID),
		Limits:        c.Queue,
		MaxRoundTrips: c.Session.MaxRoundTrips,
		HealthType:    tnc.MessageType(c.Session.HealthType),
	}
}

// NewLogger builds the logger described by the configuration
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvUint32 accepts decimal or 0x-prefixed values
func getEnvUint32(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 0, 32); err == nil {
			return uint32(v)
		}
	}
	return defaultValue
}
