package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// BackendConfig holds the connection settings for the hosted backend.
type BackendConfig struct {
	// URL is the project root, e.g. https://abc.supabase.co.
	URL string `mapstructure:"url" yaml:"url"`

	// AnonKey is the public API key sent with every request.
	AnonKey string `mapstructure:"anon_key" yaml:"anon_key"`

	// TimeoutSec bounds each HTTP round-trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PaginationConfig controls how the notification list is paged.
type PaginationConfig struct {
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// Mode is "offset" or "keyset".
	Mode string `mapstructure:"mode" yaml:"mode"`
}

// RealtimeConfig controls the push event channel.
type RealtimeConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	HeartbeatSec      int  `mapstructure:"heartbeat_sec" yaml:"heartbeat_sec"`
	HydrateTimeoutSec int  `mapstructure:"hydrate_timeout_sec" yaml:"hydrate_timeout_sec"`
}

// CacheConfig controls the local snapshot cache used for warm starts.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`
	Realtime   RealtimeConfig   `mapstructure:"realtime" yaml:"realtime"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Display    DisplayConfig    `mapstructure:"display" yaml:"display"`
}

// configDir returns ~/.config/nerdx, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nerdx")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/nerdx/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// Validate checks the values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.AnonKey == "" {
		return fmt.Errorf("backend.anon_key is required")
	}
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pagination.page_size must be > 0, got %d", c.Pagination.PageSize)
	}
	if c.Pagination.Mode != "offset" && c.Pagination.Mode != "keyset" {
		return fmt.Errorf("pagination.mode must be 'offset' or 'keyset', got %q", c.Pagination.Mode)
	}
	return nil
}

// setDefaults registers every default so missing keys resolve to sensible values.
func setDefaults(v *viper.Viper) {
	dir := configDir()
	v.SetDefault("backend.timeout_sec", 30)
	v.SetDefault("pagination.page_size", 20)
	v.SetDefault("pagination.mode", "offset")
	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.heartbeat_sec", 25)
	v.SetDefault("realtime.hydrate_timeout_sec", 10)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(dir, "cache.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", filepath.Join(dir, "nerdx.log"))
	v.SetDefault("display.theme", "default")

	// Bind keys without defaults so env overrides reach Unmarshal.
	_ = v.BindEnv("backend.url")
	_ = v.BindEnv("backend.anon_key")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed NERDX_ override file values. If the file
// does not exist, defaults (plus environment) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("nerdx")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("pagination", cfg.Pagination)
	v.Set("realtime", cfg.Realtime)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
