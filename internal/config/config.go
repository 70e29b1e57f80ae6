// Package config loads the process configuration once at boot through a
// layered provider chain, per §10.3: compiled-in defaults, then an optional
// YAML file, then environment variables at highest precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable carrying an optional
// YAML config file path. Absence is not an error: DefaultConfigPaths are
// tried instead, and the file layer is skipped if none of them exists.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are checked, in order, when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{"./config.yaml", "./config.yml", "/etc/audiencehub/config.yaml"}

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	FrontendURL string `koanf:"frontend_url"`
	Port        int    `koanf:"port"`

	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`

	InboundRateLimitPerSec       float64 `koanf:"inbound_rate_limit_per_sec"`
	ConnectionIdleTimeoutSeconds int     `koanf:"connection_idle_timeout_seconds"`
}

// DefaultConfig matches §6's documented defaults plus the ambient knobs
// §10.3 introduces.
func DefaultConfig() Config {
	return Config{
		DatabaseURL: "./data/audiencehub.db",
		FrontendURL: "http://localhost:3000",
		Port:        8001,

		LogLevel:    "info",
		LogFormat:   "json",
		MetricsAddr: "",

		InboundRateLimitPerSec:       50,
		ConnectionIdleTimeoutSeconds: 60,
	}
}

// Validate rejects settings that would make boot fail in a confusing way
// later. A failure here is a configuration error per §7: fatal, exit
// non-zero, no component constructed.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url cannot be empty")
	}
	if c.FrontendURL == "" {
		return fmt.Errorf("frontend_url cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.InboundRateLimitPerSec <= 0 {
		return fmt.Errorf("inbound_rate_limit_per_sec must be greater than 0")
	}
	if c.ConnectionIdleTimeoutSeconds <= 0 {
		return fmt.Errorf("connection_idle_timeout_seconds must be greater than 0")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// Load builds the layered configuration: defaults, optional file, then
// environment variables at the highest precedence.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("loading config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", func(key string) string {
		return strings.ToLower(key)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
