// ABOUTME: Configuration loading and parsing for cachet
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cachet configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Slack     SlackConfig     `yaml:"slack"`
	Cache     CacheConfig     `yaml:"cache"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SlackConfig holds upstream Slack API configuration
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// CacheConfig holds TTL and refresh tuning for the entity store
type CacheConfig struct {
	UserTTL            time.Duration `yaml:"-"`
	EmojiTTL           time.Duration `yaml:"-"`
	StalenessThreshold time.Duration `yaml:"-"`
	RefreshInterval    time.Duration `yaml:"-"`

	RefreshBatchSize int `yaml:"refresh_batch_size"`
	// EmojiRefreshHour is the local hour-of-day for the daily full emoji
	// refresh; chosen off-peak so the wholesale replace doesn't race busy
	// traffic.
	EmojiRefreshHour int `yaml:"emoji_refresh_hour"`

	// Raw string values for YAML unmarshaling
	UserTTLRaw            string `yaml:"user_ttl"`
	EmojiTTLRaw           string `yaml:"emoji_ttl"`
	StalenessThresholdRaw string `yaml:"staleness_threshold"`
	RefreshIntervalRaw    string `yaml:"refresh_interval"`
}

// AnalyticsConfig holds report memoization tuning
type AnalyticsConfig struct {
	MemoTTL  time.Duration `yaml:"-"`
	MemoSize int           `yaml:"memo_size"`

	MemoTTLRaw string `yaml:"memo_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack.bot_token is required")
	}
	if c.Cache.EmojiRefreshHour < 0 || c.Cache.EmojiRefreshHour > 23 {
		return fmt.Errorf("cache.emoji_refresh_hour must be between 0 and 23")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Cache.UserTTLRaw, "cache.user_ttl", &cfg.Cache.UserTTL},
		{cfg.Cache.EmojiTTLRaw, "cache.emoji_ttl", &cfg.Cache.EmojiTTL},
		{cfg.Cache.StalenessThresholdRaw, "cache.staleness_threshold", &cfg.Cache.StalenessThreshold},
		{cfg.Cache.RefreshIntervalRaw, "cache.refresh_interval", &cfg.Cache.RefreshInterval},
		{cfg.Analytics.MemoTTLRaw, "analytics.memo_ttl", &cfg.Analytics.MemoTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
