// Package config loads the daemon profile from a YAML file with SCCPD_
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rbeving/sccpd/internal/dialplan"
)

// Profile holds the settings one listening profile serves. Changes via
// the admin API take effect for registrations made after the change.
type Profile struct {
	Name             string `mapstructure:"name"`
	BindAddr         string `mapstructure:"bind_addr"`
	Port             int    `mapstructure:"port"`
	Domain           string `mapstructure:"domain"`
	KeepAliveSeconds int    `mapstructure:"keepalive_seconds"`
	DateFormat       string `mapstructure:"date_format"`
	DialTimeoutMS    int    `mapstructure:"dial_timeout_ms"`
}

// Config is the full daemon configuration.
type Config struct {
	Profile  Profile           `mapstructure:"profile"`
	Dialplan []*dialplan.Route `mapstructure:"dialplan"`
	Database DatabaseConfig    `mapstructure:"database"`
	NATS     NATSConfig        `mapstructure:"nats"`
	API      APIConfig         `mapstructure:"api"`
	Log      LogConfig         `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Profile: Profile{
			Name:             "default",
			BindAddr:         "0.0.0.0",
			Port:             2000,
			Domain:           "",
			KeepAliveSeconds: 60,
			DateFormat:       "M/D/Y",
			DialTimeoutMS:    10000,
		},
		Dialplan: []*dialplan.Route{
			{ID: "all", Name: "catch-all", Pattern: "*", Priority: 100, MinDigits: 2, Enabled: true},
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			StreamName: "SCCPD_EVENTS",
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8085",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load reads the config file at path, applying SCCPD_ env overrides. An
// empty path yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)

	v.SetConfigName(strings.TrimSuffix(filename, ext))
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix("SCCPD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and compiles the dialplan patterns.
func (c *Config) Validate() error {
	if c.Profile.Port <= 0 || c.Profile.Port > 65535 {
		return fmt.Errorf("profile port %d out of range", c.Profile.Port)
	}
	if c.Profile.KeepAliveSeconds <= 0 {
		return fmt.Errorf("keepalive_seconds must be positive")
	}
	for _, r := range c.Dialplan {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("dialplan: %w", err)
		}
	}
	return nil
}
