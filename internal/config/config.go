// Package config loads application settings from config files,
// environment variables, and defaults, in that order of increasing
// precedence for env vars over files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings.
type Config struct {
	// Database is the path to the local SQLite database file.
	Database DatabaseConfig `mapstructure:"database"`

	// Remote configures the hosted backend mirror.
	Remote RemoteConfig `mapstructure:"remote"`

	// Sync configures the drain loop.
	Sync SyncConfig `mapstructure:"sync"`

	// Dashboard configures the WebSocket monitoring server.
	Dashboard DashboardConfig `mapstructure:"dashboard"`

	// Daemon configures the background sync daemon.
	Daemon DaemonConfig `mapstructure:"daemon"`
}

// DatabaseConfig holds local store settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig holds backend connection settings.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds drain loop tuning.
type SyncConfig struct {
	// MaxRetries bounds client-error retries before a record is
	// dropped as poison.
	MaxRetries int `mapstructure:"max_retries"`

	// Interval is how often the daemon drains while online.
	Interval time.Duration `mapstructure:"interval"`

	// ProbeInterval is how often connectivity is probed.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// StaleAfter is the pending-record age past which the daemon
	// warns about unsynced data.
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// PurgeRetention is how long consumed records are kept before
	// purge removes them.
	PurgeRetention time.Duration `mapstructure:"purge_retention"`
}

// DashboardConfig holds monitoring server settings.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DaemonConfig holds background daemon settings.
type DaemonConfig struct {
	// LogFile is the rotated daemon log path. Empty means stderr.
	LogFile string `mapstructure:"log_file"`

	// OfflineFile, when present on disk, forces the daemon offline.
	OfflineFile string `mapstructure:"offline_file"`
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sprout"
	}
	return filepath.Join(home, ".sprout")
}

// Load reads configuration from the config file (if present) and
// SPROUT_-prefixed environment variables, applying defaults for
// anything unset.
func Load() (*Config, error) {
	v := viper.New()

	dataDir := DefaultDataDir()

	v.SetDefault("database.path", filepath.Join(dataDir, "sprout.db"))
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.probe_interval", 30*time.Second)
	v.SetDefault("sync.stale_after", 24*time.Hour)
	v.SetDefault("sync.purge_retention", 7*24*time.Hour)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("daemon.log_file", filepath.Join(dataDir, "daemon.log"))
	v.SetDefault("daemon.offline_file", filepath.Join(dataDir, "offline"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPROUT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// RemoteConfigured reports whether a backend is configured at all.
// With no backend, writes still queue locally and sync is a no-op.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.BaseURL != ""
}
