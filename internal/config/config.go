package config

import (
	"errors"
	"time"
)

// Config represents the revocation distribution service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents the lock store configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GatewayConfig represents the upstream gateway client configuration
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// GenerationConfig represents dataset generation configuration
type GenerationConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MinLockHold time.Duration `mapstructure:"min_lock_hold"`
	MaxLockHold time.Duration `mapstructure:"max_lock_hold"`

	// Storage mode thresholds by per-KID hash count
	VectorThreshold     int `mapstructure:"vector_threshold"`
	CoordinateThreshold int `mapstructure:"coordinate_threshold"`

	BloomFilter BloomFilterConfig `mapstructure:"bloom_filter"`
	HashList    HashListConfig    `mapstructure:"hash_list"`
}

// BloomFilterConfig enables the bloom filter encoder
type BloomFilterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
}

// HashListConfig enables the variable partial hash list encoder
type HashListConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MinByteCount      int     `mapstructure:"min_byte_count"`
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
}

// RateLimiterConfig represents rate limiter configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Redis.Host == "" {
		return errors.New("redis.host is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}
	if c.Generation.Interval <= 0 {
		return errors.New("generation.interval must be positive")
	}
	if c.Generation.MinLockHold > c.Generation.MaxLockHold {
		return errors.New("generation.min_lock_hold must not exceed generation.max_lock_hold")
	}
	if c.Generation.VectorThreshold <= 0 || c.Generation.CoordinateThreshold <= c.Generation.VectorThreshold {
		return errors.New("generation thresholds must be positive and strictly increasing")
	}
	if !c.Generation.BloomFilter.Enabled && !c.Generation.HashList.Enabled {
		return errors.New("at least one slice encoder must be enabled")
	}
	if c.Generation.BloomFilter.Enabled && (c.Generation.BloomFilter.FalsePositiveRate <= 0 || c.Generation.BloomFilter.FalsePositiveRate >= 1) {
		return errors.New("generation.bloom_filter.false_positive_rate must be in (0, 1)")
	}
	if c.Generation.HashList.Enabled && (c.Generation.HashList.FalsePositiveRate <= 0 || c.Generation.HashList.FalsePositiveRate >= 1) {
		return errors.New("generation.hash_list.false_positive_rate must be in (0, 1)")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "revocation",
			User:           "revocation",
			Password:       "",
			MaxConnections: 50,
			MinConnections: 10,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Gateway: GatewayConfig{
			BaseURL:    "http://localhost:8090",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Generation: GenerationConfig{
			Interval:            5 * time.Minute,
			MinLockHold:         30 * time.Second,
			MaxLockHold:         15 * time.Minute,
			VectorThreshold:     1000,
			CoordinateThreshold: 100000,
			BloomFilter: BloomFilterConfig{
				Enabled:           true,
				FalsePositiveRate: 0.000000001,
			},
			HashList: HashListConfig{
				Enabled:           true,
				MinByteCount:      2,
				FalsePositiveRate: 0.000000001,
			},
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
