package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sessiond daemon.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	TabURLFilter string

	// HTTP listener
	BindAddr      string
	BindFallbacks []string
	AutoFallback  bool

	// Timeouts in milliseconds
	EvalTimeoutMS     int
	RestoreDeadlineMS int
	OpenTimeoutMS     int
	ReloadTimeoutMS   int

	// Storage settings
	DataDir           string
	JournalDir        string
	JournalBufferSize int
	JournalMaxSizeMB  int

	LogLevel string
	LogFile  string

	// GuardFile is an optional YAML file overriding the extraction guard.
	GuardFile string

	Browser BrowserConfig
}

// BrowserConfig controls the optional managed Chromium.
type BrowserConfig struct {
	Launch     bool
	StartURL   string
	ProfileDir string
	Headless   bool
	ExecPath   string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("SESSIOND_TAB_URL_FILTER", ""),
		BindAddr:          getEnvOrDefault("SESSIOND_BIND_ADDR", "127.0.0.1:8190"),
		BindFallbacks:     getEnvListOrDefault("SESSIOND_BIND_FALLBACKS", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		AutoFallback:      getEnvBoolOrDefault("SESSIOND_BIND_AUTO_FALLBACK", true),
		EvalTimeoutMS:     getEnvIntOrDefault("SESSIOND_EVAL_TIMEOUT_MS", 5000),
		RestoreDeadlineMS: getEnvIntOrDefault("SESSIOND_RESTORE_DEADLINE_MS", 2000),
		OpenTimeoutMS:     getEnvIntOrDefault("SESSIOND_DB_OPEN_TIMEOUT_MS", 3000),
		ReloadTimeoutMS:   getEnvIntOrDefault("SESSIOND_RELOAD_TIMEOUT_MS", 10000),
		DataDir:           getEnvOrDefault("SESSIOND_DATA_DIR", "./sessionvault_data"),
		JournalDir:        getEnvOrDefault("SESSIOND_JOURNAL_DIR", "./sessionvault_data/journal"),
		JournalBufferSize: getEnvIntOrDefault("SESSIOND_JOURNAL_BUFFER_SIZE", 256),
		JournalMaxSizeMB:  getEnvIntOrDefault("SESSIOND_JOURNAL_MAX_SIZE_MB", 25),
		LogLevel:          strings.ToLower(getEnvOrDefault("SESSIOND_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("SESSIOND_LOG_FILE", "logs/sessiond.log"),
		GuardFile:         getEnvOrDefault("SESSIOND_GUARD_FILE", "guard.yaml"),
		Browser: BrowserConfig{
			Launch:     getEnvBoolOrDefault("SESSIOND_LAUNCH_BROWSER", false),
			StartURL:   getEnvOrDefault("SESSIOND_BROWSER_START_URL", "about:blank"),
			ProfileDir: getEnvOrDefault("SESSIOND_BROWSER_PROFILE_DIR", "./browser_profile"),
			Headless:   getEnvBoolOrDefault("SESSIOND_BROWSER_HEADLESS", false),
			ExecPath:   getEnvOrDefault("SESSIOND_BROWSER_PATH", ""),
		},
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.RestoreDeadlineMS <= 0 {
		cfg.RestoreDeadlineMS = 2000
	}
	if cfg.OpenTimeoutMS <= 0 {
		cfg.OpenTimeoutMS = 3000
	}
	if cfg.ReloadTimeoutMS <= 0 {
		cfg.ReloadTimeoutMS = 10000
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT: %d", cfg.CDPPort)
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func (c *Config) RestoreDeadline() time.Duration {
	return time.Duration(c.RestoreDeadlineMS) * time.Millisecond
}

func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutMS) * time.Millisecond
}

func (c *Config) ReloadTimeout() time.Duration {
	return time.Duration(c.ReloadTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
