package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Matching  MatchingConfig
	Updater   UpdaterConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL               string        `mapstructure:"url"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute per client IP
	Feed  int `mapstructure:"feed"`   // feed downloads per hour
}

// MatchingConfig tunes the price lookup
type MatchingConfig struct {
	CandidateLimit     int  `mapstructure:"candidate_limit"`
	BatchConcurrency   int  `mapstructure:"batch_concurrency"`
	EnableDebugLogging bool `mapstructure:"enable_debug_logging"`
}

// UpdaterConfig holds the feed reconciliation settings
type UpdaterConfig struct {
	FeedURL        string        `mapstructure:"feed_url"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	BatchSize      int           `mapstructure:"batch_size"`
	ChunkDelay     time.Duration `mapstructure:"chunk_delay"`
	RunAt          string        `mapstructure:"run_at"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DryRun         bool          `mapstructure:"dry_run"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development" || c.Server.Environment == "dev"
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	// Environment variable settings: server.port -> PRICELENS_SERVER_PORT
	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key is registered
// here so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "24h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
	v.SetDefault("ratelimit.feed", 6)

	// Matching defaults
	v.SetDefault("matching.candidate_limit", 50)
	v.SetDefault("matching.batch_concurrency", 8)
	v.SetDefault("matching.enable_debug_logging", false)

	// Updater defaults
	v.SetDefault("updater.feed_url", "")
	v.SetDefault("updater.chunk_size", 5000)
	v.SetDefault("updater.batch_size", 1000)
	v.SetDefault("updater.chunk_delay", "1s")
	v.SetDefault("updater.run_at", "01:00")
	v.SetDefault("updater.request_timeout", "5m")
	v.SetDefault("updater.dry_run", false)

	// Log defaults
	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database URL is required (set PRICELENS_DATABASE_URL)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Updater.BatchSize <= 0 {
		return fmt.Errorf("updater batch size must be positive, got: %d", config.Updater.BatchSize)
	}

	if config.Updater.ChunkDelay < 0 {
		return fmt.Errorf("updater chunk delay must not be negative, got: %s", config.Updater.ChunkDelay)
	}

	if _, err := time.Parse("15:04", config.Updater.RunAt); err != nil {
		return fmt.Errorf("updater run_at must be HH:MM, got: %q", config.Updater.RunAt)
	}

	return nil
}

// ValidateUpdater checks the settings only the updater needs
func (c *Config) ValidateUpdater() error {
	if c.Updater.FeedURL == "" {
		return fmt.Errorf("feed URL is required (set PRICELENS_UPDATER_FEED_URL)")
	}
	return nil
}
