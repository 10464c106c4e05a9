// Package config provides configuration management for coinsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/coinsync/internal/fileutil"
	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Node     NodeConfig     `yaml:"node"`
	Servers  []ServerConfig `yaml:"servers"`
	Sync     SyncConfig     `yaml:"sync"`
	Fees     FeesConfig     `yaml:"fees"`
	Send     SendConfig     `yaml:"send"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Accounts AccountsConfig `yaml:"accounts"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig defines how the wallet node is reached. A non-empty URL takes
// precedence over the default entry of Servers.
type NodeConfig struct {
	URL                string        `yaml:"url,omitempty"`
	Username           string        `yaml:"username,omitempty"`
	Password           string        `yaml:"password,omitempty"`
	Timeout            time.Duration `yaml:"timeout"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
}

// ServerConfig is a named node endpoint.
type ServerConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Default  bool   `yaml:"default,omitempty"`
}

// SyncConfig defines refresh and fetch behavior.
type SyncConfig struct {
	DebounceWindow      time.Duration `yaml:"debounce_window"`
	FeeDebounceWindow   time.Duration `yaml:"fee_debounce_window"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	MaxConcurrent       int           `yaml:"max_concurrent"`
	HistoryPollInterval time.Duration `yaml:"history_poll_interval"`
	SubscriberBuffer    int           `yaml:"subscriber_buffer"`
}

// FeesConfig defines fee validation settings.
type FeesConfig struct {
	// EnforceMinFeePerKb turns the fee-below-minimum warning into a
	// blocking validation error.
	EnforceMinFeePerKb bool `yaml:"enforce_min_fee_per_kb"`
}

// SendConfig defines send flow settings.
type SendConfig struct {
	ConfirmationTTL time.Duration `yaml:"confirmation_ttl"`
	Decimals        int           `yaml:"decimals"`
	Symbol          string        `yaml:"symbol"`
	Privacy         bool          `yaml:"privacy"`
}

// CacheConfig defines balance cache persistence.
// Entries older than MaxAge are dropped when the file is loaded; zero keeps
// them all.
type CacheConfig struct {
	Persist bool          `yaml:"persist"`
	File    string        `yaml:"file"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// HistoryConfig defines transaction history persistence.
type HistoryConfig struct {
	Persist bool   `yaml:"persist"`
	Dir     string `yaml:"dir"`
}

// AccountsConfig points at the accounts file.
type AccountsConfig struct {
	File string `yaml:"file"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file. Missing keys keep
// their defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, coinerr.WithDetails(coinerr.ErrConfigNotFound, map[string]string{"path": path})
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, coinerr.WithCause(coinerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default coinsync home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coinsync"
	}
	return filepath.Join(home, ".coinsync")
}

// ActiveServer returns the node endpoint to use. A non-empty name selects a
// Servers entry; otherwise Node.URL wins when set, then the default entry,
// then the first entry.
func (c *Config) ActiveServer(name string) (ServerConfig, error) {
	if name != "" {
		for _, s := range c.Servers {
			if strings.EqualFold(s.Name, name) {
				return s, nil
			}
		}
		return ServerConfig{}, coinerr.WithSuggestion(
			coinerr.WithDetails(coinerr.ErrNotFound, map[string]string{"server": name}),
			"known servers: "+strings.Join(c.serverNames(), ", "),
		)
	}

	if c.Node.URL != "" {
		return ServerConfig{
			Name:     "custom",
			URL:      c.Node.URL,
			Username: c.Node.Username,
			Password: c.Node.Password,
		}, nil
	}

	for _, s := range c.Servers {
		if s.Default {
			return s, nil
		}
	}
	if len(c.Servers) > 0 {
		return c.Servers[0], nil
	}
	return ServerConfig{}, coinerr.WithSuggestion(coinerr.ErrConfigInvalid, "set node.url or add a servers entry")
}

func (c *Config) serverNames() []string {
	names := make([]string, len(c.Servers))
	for i, s := range c.Servers {
		names[i] = s.Name
	}
	return names
}

// ResolvePath expands "~/" and anchors relative paths at Home.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Home), p)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// GetHome returns the coinsync home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}
