package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"debrief/internal/logging"
	"debrief/internal/paths"
)

// Config holds debrief's launch settings: where the external services live,
// how long to wait for them, and how to log. User data (stores and
// preferences) lives in config.json and is managed by package prefs.
type Config struct {
	// External debrief services
	Services ServicesConfig `yaml:"services"`

	// Recently opened plots history
	Recent RecentConfig `yaml:"recent"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RecentConfig configures the recent plots history.
type RecentConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Services: ServicesConfig{
			IO: ServiceConfig{
				Name:    IOServiceName,
				Timeout: "30s",
			},
			STAC: ServiceConfig{
				Name:         STACServiceName,
				Timeout:      "30s",
				ReadyTimeout: "5s",
				ReadyMethod:  "ping",
			},
		},

		Recent: RecentConfig{
			MaxEntries: 10,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns services.yaml in the platform config directory.
func DefaultPath() (string, error) {
	return paths.ServicesFile()
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honour the environment
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Service executables, e.g. DEBRIEF_STAC_PATH
	for _, svc := range []*ServiceConfig{&c.Services.IO, &c.Services.STAC} {
		if p := os.Getenv(EnvKey(svc.Name)); p != "" {
			svc.Path = p
		}
	}

	if level := os.Getenv("DEBRIEF_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("DEBRIEF_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// EnvKey returns the environment variable that overrides the executable
// of the named service: debrief-stac becomes DEBRIEF_STAC_PATH.
func EnvKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_PATH"
}

// GetRecentMax returns the recent history size, falling back to 10.
func (c *Config) GetRecentMax() int {
	if c.Recent.MaxEntries <= 0 {
		return 10
	}
	return c.Recent.MaxEntries
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, svc := range []ServiceConfig{c.Services.IO, c.Services.STAC} {
		if svc.Name == "" {
			return fmt.Errorf("service name not configured")
		}
		for field, value := range map[string]string{"timeout": svc.Timeout, "ready_timeout": svc.ReadyTimeout} {
			if value == "" {
				continue
			}
			if d, err := time.ParseDuration(value); err != nil || d <= 0 {
				return fmt.Errorf("invalid %s for %s: %q", field, svc.Name, value)
			}
		}
	}

	if err := logging.ValidateLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, logging.ValidLevels)
	}

	if c.Recent.MaxEntries < 0 {
		return fmt.Errorf("recent.max_entries must not be negative")
	}

	return nil
}
