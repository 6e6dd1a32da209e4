// Package config loads kith settings from a yaml file and KITH_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type Config struct {
	Authority AuthorityConfig `mapstructure:"authority" yaml:"authority"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type AuthorityConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

type SearchConfig struct {
	Debounce string `mapstructure:"debounce" yaml:"debounce"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // sqlite, badger
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Authority: AuthorityConfig{
			BaseURL: "http://localhost:8080",
			Timeout: "8s",
		},
		Search: SearchConfig{
			Debounce: "300ms",
		},
		Cache: CacheConfig{
			MaxEntries: 5000,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".kith"
	}
	return filepath.Join(homeDir, ".kith")
}

// Load reads a yaml config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path as yaml, creating the directory if needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DiscoverPath picks the config file: the flag value, then $KITH_CONFIG,
// then ~/.kith/config.yaml.
func DiscoverPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}

	if envPath := os.Getenv("KITH_CONFIG"); envPath != "" {
		return envPath
	}

	return filepath.Join(defaultDataDir(), "config.yaml")
}

// LoadWithEnv reads path if it exists and overlays KITH_* environment
// variables, e.g. KITH_AUTHORITY_BASE_URL.
func LoadWithEnv(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("KITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("authority.base_url", def.Authority.BaseURL)
	v.SetDefault("authority.token", def.Authority.Token)
	v.SetDefault("authority.timeout", def.Authority.Timeout)
	v.SetDefault("search.debounce", def.Search.Debounce)
	v.SetDefault("cache.max_entries", def.Cache.MaxEntries)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.data_dir", def.Storage.DataDir)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Authority.BaseURL == "" {
		return fmt.Errorf("authority.base_url is required")
	}
	if _, err := time.ParseDuration(c.Authority.Timeout); c.Authority.Timeout != "" && err != nil {
		return fmt.Errorf("authority.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Search.Debounce); c.Search.Debounce != "" && err != nil {
		return fmt.Errorf("search.debounce: %w", err)
	}
	switch c.Storage.Backend {
	case "", BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	return nil
}

// Timeout returns the authority request deadline.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.Authority.Timeout, 8*time.Second)
}

// Debounce returns the search debounce delay.
func (c *Config) Debounce() time.Duration {
	return parseDuration(c.Search.Debounce, 300*time.Millisecond)
}

// Backend returns the storage backend, defaulting to sqlite.
func (c *Config) Backend() string {
	if c.Storage.Backend == "" {
		return BackendSQLite
	}
	return c.Storage.Backend
}

// DataDir returns the storage directory with a leading ~ expanded.
func (c *Config) DataDir() string {
	dir := c.Storage.DataDir
	if dir == "" {
		return defaultDataDir()
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return dir
}

// LogFile returns the log destination, defaulting to kith.log in the data
// directory.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir(), "kith.log")
}

// Get returns the value of a dotted key as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "authority.base_url":
		return c.Authority.BaseURL, nil
	case "authority.token":
		return c.Authority.Token, nil
	case "authority.timeout":
		return c.Authority.Timeout, nil
	case "search.debounce":
		return c.Search.Debounce, nil
	case "cache.max_entries":
		return fmt.Sprint(c.Cache.MaxEntries), nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.data_dir":
		return c.Storage.DataDir, nil
	case "log.level":
		return c.Log.Level, nil
	case "log.file":
		return c.Log.File, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set assigns a dotted key from its string form.
func (c *Config) Set(key, value string) error {
	switch key {
	case "authority.base_url":
		c.Authority.BaseURL = value
	case "authority.token":
		c.Authority.Token = value
	case "authority.timeout":
		c.Authority.Timeout = value
	case "search.debounce":
		c.Search.Debounce = value
	case "cache.max_entries":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return fmt.Errorf("cache.max_entries: %q is not a number", value)
		}
		c.Cache.MaxEntries = n
	case "storage.backend":
		c.Storage.Backend = value
	case "storage.data_dir":
		c.Storage.DataDir = value
	case "log.level":
		c.Log.Level = value
	case "log.file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return c.Validate()
}

// Keys lists every settable key.
func Keys() []string {
	return []string{
		"authority.base_url",
		"authority.token",
		"authority.timeout",
		"search.debounce",
		"cache.max_entries",
		"storage.backend",
		"storage.data_dir",
		"log.level",
		"log.file",
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
