// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Insight clients.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the INSIGHT_CONFIG environment variable
//
// There is no search path or automatic discovery. When neither is set,
// commands run on Default(), which targets a local backend.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	// Server configures the backend connection.
	Server ServerConfig `yaml:"server"`

	// Chat configures the interactive chat surface.
	Chat ChatConfig `yaml:"chat"`

	// Capture configures session recording.
	Capture CaptureConfig `yaml:"capture"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`
}

// ServerConfig configures the backend connection.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000. The
	// streaming endpoint path is appended by the client.
	BaseURL string `yaml:"base_url"`

	// ConnectTimeout bounds connection setup, as a Go duration
	// string. It does not bound the stream itself, which stays open
	// as long as the session runs.
	ConnectTimeout string `yaml:"connect_timeout"`
}

// ChatConfig configures the interactive chat surface.
type ChatConfig struct {
	// Thinking requests extended agent reasoning on every message.
	Thinking bool `yaml:"thinking"`
}

// CaptureConfig configures session recording.
type CaptureConfig struct {
	// Path, when set, records every session to this capture file.
	Path string `yaml:"path"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File receives log output. The chat surface owns the terminal,
	// so logs must go to a file; empty discards them.
	File string `yaml:"file"`
}

// Default returns the configuration used when no config file is given:
// a local backend, info logging, no capture.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8000",
			ConnectTimeout: "10s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the INSIGHT_CONFIG environment
// variable. Fails when it is not set; callers wanting a fallback use
// Resolve.
func Load() (*Config, error) {
	path := os.Getenv("INSIGHT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("INSIGHT_CONFIG environment variable not set; " +
			"set it to the path of your insight.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging over
// Default(). Environment variables never override file values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve picks the configuration source for a command: the --config
// flag value if non-empty, else INSIGHT_CONFIG if set, else Default().
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv("INSIGHT_CONFIG") != "" {
		return Load()
	}
	return Default(), nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.BaseURL == "" {
		errs = append(errs, fmt.Errorf("server.base_url is required"))
	} else if parsed, err := url.Parse(c.Server.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("server.base_url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("server.base_url must be http or https, got %q", parsed.Scheme))
	}

	if c.Server.ConnectTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ConnectTimeout); err != nil {
			errs = append(errs, fmt.Errorf("server.connect_timeout: %w", err))
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ConnectTimeout returns the parsed connection timeout. Call Validate
// first; an unparseable value falls back to the default here.
func (c *Config) ConnectTimeout() time.Duration {
	parsed, err := time.ParseDuration(c.Server.ConnectTimeout)
	if err != nil || parsed <= 0 {
		return 10 * time.Second
	}
	return parsed
}

// LogLevel returns the slog level for the configured level string.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
