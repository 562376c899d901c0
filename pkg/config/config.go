// Package config provides configuration management for the codex-switch core.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// Config holds all core configuration
type Config struct {
	// BaseDir is the application data directory holding the database and
	// snapshots. Empty means the platform default.
	BaseDir string `toml:"base_dir"`

	// SocketPath is the Unix socket the RPC server listens on.
	SocketPath string `toml:"socket_path"`

	// LoginTimeoutSeconds bounds a single `codex login` attempt.
	LoginTimeoutSeconds int `toml:"login_timeout_seconds"`

	// QuotaAutoRefreshCron optionally schedules background quota refreshes.
	// Empty disables the scheduler.
	QuotaAutoRefreshCron string `toml:"quota_auto_refresh_cron"`

	Logging LoggingConfig `toml:"logging"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		BaseDir:             DefaultBaseDir(),
		SocketPath:          filepath.Join(DefaultBaseDir(), "codex-switch.sock"),
		LoginTimeoutSeconds: 900,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DefaultBaseDir resolves the application data directory. Fallback order:
// the platform user data dir, the home directory, the working directory.
func DefaultBaseDir() string {
	if dir := userDataDir(); dir != "" {
		return filepath.Join(dir, "codex-switch")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "codex-switch")
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "codex-switch")
	}
	return "codex-switch"
}

func userDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return os.Getenv("LOCALAPPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support")
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".local", "share")
	}
}

// ConfigPaths returns the default config file search order
func ConfigPaths() []string {
	paths := []string{filepath.Join(DefaultBaseDir(), "config.toml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".codex-switch.toml"))
	}
	return paths
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.LoginTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: login_timeout_seconds must be positive", ErrInvalidConfig)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// applyEnvOverrides layers CODEX_SWITCH_* environment variables over cfg
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CODEX_SWITCH_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("CODEX_SWITCH_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("CODEX_SWITCH_LOGIN_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CODEX_SWITCH_LOGIN_TIMEOUT: %w", err)
		}
		cfg.LoginTimeoutSeconds = seconds
	}
	if v := os.Getenv("CODEX_SWITCH_QUOTA_CRON"); v != "" {
		cfg.QuotaAutoRefreshCron = v
	}
	if v := os.Getenv("CODEX_SWITCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
