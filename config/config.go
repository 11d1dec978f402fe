/*
config.go - Application configuration

PURPOSE:
  Defines the TOML configuration file format and loader for the
  clinic-stock server. Missing values fall back to defaults so a
  bare `clinic-stock` invocation works out of the box.

FORMAT:
  [server]
  port = 8080
  cors_origins = ["*"]

  [database]
  path = "clinic.db"

  [logging]
  env = "production"   # or "development"
  level = "info"
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigFileName is the configuration file looked up in the
// working directory when no explicit path is given.
const DefaultConfigFileName = "clinic-stock.toml"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// DatabaseConfig controls the sqlite database location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Env   string `toml:"env"`
	Level string `toml:"level"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "clinic.db",
		},
		Logging: LoggingConfig{
			Env:   "production",
			Level: "info",
		},
	}
}

// Load reads configuration from the given path. An empty path loads
// DefaultConfigFileName from the working directory if it exists, and
// falls back to Default() otherwise. An explicit path that does not
// exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultConfigFileName); err != nil {
			return Default(), nil
		}
		path = DefaultConfigFileName
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch c.Logging.Env {
	case "production", "development":
	default:
		return fmt.Errorf("logging.env must be production or development, got %q", c.Logging.Env)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}
