package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Remote    RemoteConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Poller    PollerConfig
	Feed      FeedConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// RemoteConfig holds the remote discussion service configuration
type RemoteConfig struct {
	GraphQLURL string
	RestURL    string
	RawURL     string
	Owner      string
	Name       string
	CategoryID string
	Token      string
	MaxRetries int
	BaseDelay  time.Duration
}

// DatabaseConfig holds database configuration. An empty URL selects the
// in-memory write-ahead backend (entries do not survive a restart).
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	Host string
}

// PollerConfig holds confirmation-poller configuration
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// FeedConfig holds feed query configuration
type FeedConfig struct {
	PageSize int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	// Load from environment
	viper.SetEnvPrefix("DROPS")
	viper.AutomaticEnv()

	// Load from config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.drops")
	viper.AddConfigPath("/etc/drops")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Remote: RemoteConfig{
			GraphQLURL: getString("remote_graphql_url", "https://api.github.com/graphql"),
			RestURL:    getString("remote_rest_url", "https://api.github.com"),
			RawURL:     getString("remote_raw_url", "https://raw.githubusercontent.com"),
			Owner:      getString("remote_owner", ""),
			Name:       getString("remote_name", ""),
			CategoryID: getString("remote_category_id", ""),
			Token:      getString("remote_token", ""),
			MaxRetries: getInt("remote_max_retries", 3),
			BaseDelay:  time.Duration(getInt("remote_base_delay_ms", 1000)) * time.Millisecond,
		},
		Database: DatabaseConfig{
			URL: getString("database_url", ""),
		},
		Redis: RedisConfig{
			URL:     getString("redis_url", ""),
			Enabled: getString("redis_url", "") != "",
		},
		Server: ServerConfig{
			Port: getInt("http_server_port", 8080),
			Host: getString("http_server_host", "0.0.0.0"),
		},
		Poller: PollerConfig{
			Interval: time.Duration(getInt("poll_interval_seconds", 3)) * time.Second,
			Timeout:  time.Duration(getInt("poll_timeout_seconds", 30)) * time.Second,
		},
		Feed: FeedConfig{
			PageSize: getInt("feed_page_size", 25),
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", true),
			JaegerURL:         getString("jaeger_url", "http://localhost:14268/api/traces"),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "drops"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("remote_graphql_url", "https://api.github.com/graphql")
	viper.SetDefault("remote_rest_url", "https://api.github.com")
	viper.SetDefault("remote_raw_url", "https://raw.githubusercontent.com")
	viper.SetDefault("remote_max_retries", 3)
	viper.SetDefault("remote_base_delay_ms", 1000)
	viper.SetDefault("http_server_port", 8080)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("poll_interval_seconds", 3)
	viper.SetDefault("poll_timeout_seconds", 30)
	viper.SetDefault("feed_page_size", 25)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("telemetry_enabled", true)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "drops")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv("DROPS_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv("DROPS_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv("DROPS_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func toEnvKey(key string) string {
	// Convert snake_case to UPPER_SNAKE_CASE
	result := ""
	for i, r := range key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result += "_"
		}
		if r == '-' || r == '_' {
			result += "_"
		} else {
			result += string(r)
		}
	}
	return result
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Remote.GraphQLURL == "" {
		return fmt.Errorf("remote_graphql_url is required")
	}
	if c.Remote.Owner == "" {
		return fmt.Errorf("remote_owner is required")
	}
	if c.Remote.Name == "" {
		return fmt.Errorf("remote_name is required")
	}
	if c.Remote.CategoryID == "" {
		return fmt.Errorf("remote_category_id is required")
	}
	if c.Remote.MaxRetries < 0 || c.Remote.MaxRetries > 10 {
		return fmt.Errorf("remote_max_retries must be between 0 and 10")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	if c.Poller.Timeout < c.Poller.Interval {
		return fmt.Errorf("poll_timeout_seconds must be at least poll_interval_seconds")
	}
	if c.Feed.PageSize <= 0 || c.Feed.PageSize > 100 {
		return fmt.Errorf("feed_page_size must be between 1 and 100")
	}
	return nil
}

// GetDuration returns a duration from config key, with default
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultValue
}
