// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig represents the host-facing HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// APIConfig represents licensing backend API configuration.
type APIConfig struct {
	Key        string `yaml:"key" validate:"required"`
	AppID      string `yaml:"app_id" validate:"required"`
	AppSecret  string `yaml:"app_secret" validate:"required"`
	Server     string `yaml:"server" default:"https://api.tunecloud.example.com" validate:"url"`
	TimeoutSec int    `yaml:"timeout_sec" default:"15" validate:"gte=1,lte=120"`
}

// PlaybackConfig represents playback-related configuration.
type PlaybackConfig struct {
	Format string `yaml:"format" default:"opus_96" validate:"required"`
}

// EntitlementConfig represents the entitlement bundle configuration.
type EntitlementConfig struct {
	BundleID    string `yaml:"bundle_id" default:"radio" validate:"required"`
	PayType     string `yaml:"pay_type" default:"prepaid"`
	BillingType string `yaml:"billing_type" default:"bundle"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BOOMBOX_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("BOOMBOX_APP_ID"); v != "" {
		c.API.AppID = v
	}
	if v := os.Getenv("BOOMBOX_APP_SECRET"); v != "" {
		c.API.AppSecret = v
	}
	if v := os.Getenv("BOOMBOX_API_SERVER"); v != "" {
		c.API.Server = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// APITimeout returns the backend call timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}
