// Package config holds application configuration for tools built on the
// library: log level plus the console stream tuning knobs.
package config

import (
	"fmt"
	"os"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/ttyio/pkg/loop"
)

// Config holds application configuration.
type Config struct {
	LogLevel        string `yaml:"log_level" default:"info"`
	ReadBufferSize  int    `yaml:"read_buffer_size" default:"4096"`
	WriteBufferSize int    `yaml:"write_buffer_size" default:"4096"`
	PollTimeoutMs   int    `yaml:"poll_timeout_ms" default:"50"`
}

// Default returns a Config populated from the struct tags.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads a YAML config file on top of the defaults. Unset keys keep
// their default values.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects values the stream layer cannot work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return fmt.Errorf("buffer sizes must not be negative")
	}
	if c.PollTimeoutMs < 0 {
		return fmt.Errorf("poll timeout must not be negative")
	}
	return nil
}

// StreamOptions translates the config into stream tuning for pkg/loop.
func (c *Config) StreamOptions(logger *logrus.Logger) *loop.StreamOptions {
	return &loop.StreamOptions{
		ReadCap:       c.ReadBufferSize,
		WriteCap:      c.WriteBufferSize,
		PollTimeoutMs: c.PollTimeoutMs,
		Logger:        logger,
	}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
