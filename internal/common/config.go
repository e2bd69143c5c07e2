// Package common provides shared utilities for the sharesrus service
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the service
type Config struct {
	Environment string            `toml:"environment"`
	Server      ServerConfig      `toml:"server"`
	DataService DataServiceConfig `toml:"dataservice"`
	PriceStream PriceStreamConfig `toml:"pricestream"`
	Cache       CacheConfig       `toml:"cache"`
	Chart       ChartConfig       `toml:"chart"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DataServiceConfig holds the remote portfolio data service configuration
type DataServiceConfig struct {
	BaseURL   string        `toml:"base_url"`
	RateLimit int           `toml:"rate_limit"`
	Timeout   string        `toml:"timeout"`
	Breaker   BreakerConfig `toml:"breaker"`
}

// GetTimeout parses and returns the timeout duration
func (c *DataServiceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// BreakerConfig configures the circuit breaker guarding the data service.
type BreakerConfig struct {
	MaxFailures int    `toml:"max_failures"`
	OpenTimeout string `toml:"open_timeout"`
}

// GetOpenTimeout parses the time the breaker stays open before probing.
func (c *BreakerConfig) GetOpenTimeout() time.Duration {
	d, err := time.ParseDuration(c.OpenTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PriceStreamConfig holds the push price source configuration
type PriceStreamConfig struct {
	URL          string `toml:"url"`
	MinBackoff   string `toml:"min_backoff"`
	MaxBackoff   string `toml:"max_backoff"`
	SendBuffer   int    `toml:"send_buffer"`
	PingInterval string `toml:"ping_interval"`
}

// GetMinBackoff returns the first reconnect delay
func (c *PriceStreamConfig) GetMinBackoff() time.Duration {
	d, err := time.ParseDuration(c.MinBackoff)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetMaxBackoff returns the reconnect delay ceiling
func (c *PriceStreamConfig) GetMaxBackoff() time.Duration {
	d, err := time.ParseDuration(c.MaxBackoff)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetPingInterval returns the keepalive ping interval
func (c *PriceStreamConfig) GetPingInterval() time.Duration {
	d, err := time.ParseDuration(c.PingInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheConfig holds the Redis history cache configuration
type CacheConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTL      string `toml:"ttl"`
}

// GetTTL parses and returns the cache entry lifetime
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return FreshnessHistory
	}
	return d
}

// ChartConfig holds PNG chart rendering dimensions
type ChartConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DataService: DataServiceConfig{
			BaseURL:   "http://localhost:8000/api",
			RateLimit: 10,
			Timeout:   "30s",
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: "30s",
			},
		},
		PriceStream: PriceStreamConfig{
			URL:          "ws://localhost:8000/ws/prices",
			MinBackoff:   "500ms",
			MaxBackoff:   "30s",
			SendBuffer:   256,
			PingInterval: "30s",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     "5m",
		},
		Chart: ChartConfig{
			Width:  900,
			Height: 400,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Outputs:  []string{"console"},
			FilePath: "./logs/sharesrus.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env never overrides variables already present in the process environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SHARES_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SHARES_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SHARES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SHARES_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("SHARES_DATASERVICE_URL"); v != "" {
		config.DataService.BaseURL = v
	}

	if v := os.Getenv("SHARES_PRICESTREAM_URL"); v != "" {
		config.PriceStream.URL = v
	}

	if v := os.Getenv("SHARES_REDIS_ADDR"); v != "" {
		config.Cache.Addr = v
		config.Cache.Enabled = true
	}

	if v := os.Getenv("SHARES_REDIS_PASSWORD"); v != "" {
		config.Cache.Password = v
	}

	if v := os.Getenv("SHARES_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Cache.Enabled = b
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
