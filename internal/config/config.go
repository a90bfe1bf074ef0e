// Package config loads and saves the CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL        = "https://api.tdameritrade.com/v1"
	DefaultAuthURL           = "https://auth.tdameritrade.com/auth"
	DefaultTokenURL          = "https://api.tdameritrade.com/v1/oauth2/token"
	DefaultRequestsPerMinute = 120
	DefaultStoreBackend      = "file"
	DefaultLogLevel          = "warn"

	appDirName     = "tda"
	configFileName = "config.yaml"
)

var validBackends = map[string]bool{
	"file":      true,
	"encrypted": true,
	"sqlite":    true,
	"keyring":   true,
}

// StoreConfig selects where credentials are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	// Path overrides the backend's default file inside ConfigDir.
	Path string `yaml:"path,omitempty"`
}

// Config holds the CLI configuration.
type Config struct {
	ClientID          string      `yaml:"client_id"`
	RedirectURI       string      `yaml:"redirect_uri"`
	APIBaseURL        string      `yaml:"api_base_url"`
	AuthURL           string      `yaml:"auth_url"`
	TokenURL          string      `yaml:"token_url"`
	StreamURL         string      `yaml:"stream_url,omitempty"`
	AccountID         string      `yaml:"account_id,omitempty"`
	Store             StoreConfig `yaml:"store"`
	RequestsPerMinute int         `yaml:"requests_per_minute"`
	LogLevel          string      `yaml:"log_level"`
	MetricsAddr       string      `yaml:"metrics_addr,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:        DefaultAPIBaseURL,
		AuthURL:           DefaultAuthURL,
		TokenURL:          DefaultTokenURL,
		Store:             StoreConfig{Backend: DefaultStoreBackend},
		RequestsPerMinute: DefaultRequestsPerMinute,
		LogLevel:          DefaultLogLevel,
	}
}

// Load reads the config file at path. A missing file yields DefaultConfig;
// keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults restores defaults for keys present but empty in the file.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = d.AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = d.TokenURL
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend %q (want file, encrypted, sqlite or keyring)", c.Store.Backend)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// Save writes cfg to path with 0600 permissions, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigDir returns the configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/tda.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appDirName)
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), configFileName)
}
