// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Every knob has a default so all
// three services start with an empty environment against local
// Kafka/Mongo.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the knobs shared by the three services. Zero values are
// replaced by defaults in Load.
type Config struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	MongoURI     string   `yaml:"mongodb_uri"`
	MongoDB      string   `yaml:"mongodb_database"`

	GRPCPort               int    `yaml:"grpc_port"`
	TradesServiceHost      string `yaml:"trades_service_host"`
	TradesServicePort      int    `yaml:"trades_service_port"`
	PersistenceServiceHost string `yaml:"persistence_service_host"`
	PersistenceServicePort int    `yaml:"persistence_service_port"`
	HTTPPort               int    `yaml:"http_port"`

	BatchInterval         time.Duration `yaml:"-"`
	MemoryRetention       time.Duration `yaml:"-"`
	QueriedRangeRetention time.Duration `yaml:"-"`
	WaitTimeout           time.Duration `yaml:"-"`
	MarketBufferSize      int           `yaml:"market_buffer_size"`
	TradingFeePerMWh      string        `yaml:"trading_fee_per_mwh"`

	AdminJWTSecret string `yaml:"admin_jwt_secret"`
	// RateLimitRPS of 0 means unset (defaulted to 10); any negative
	// value disables rate limiting entirely.
	RateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	RateLimitBurst int     `yaml:"api_rate_limit_burst"`

	// Millisecond knobs as they appear in the file; converted to the
	// Duration fields above after load.
	BatchIntervalMS         int `yaml:"batch_interval_ms"`
	MemoryRetentionMS       int `yaml:"memory_retention_ms"`
	QueriedRangeRetentionMS int `yaml:"queried_range_retention_ms"`
	WaitTimeoutMS           int `yaml:"wait_timeout_ms"`
}

// Load reads CONFIG_FILE if set (missing file is fatal only when
// explicitly requested), applies environment overrides, then defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		cfg.MongoDB = v
	}
	if v := os.Getenv("TRADES_SERVICE_HOST"); v != "" {
		cfg.TradesServiceHost = v
	}
	if v := os.Getenv("PERSISTENCE_SERVICE_HOST"); v != "" {
		cfg.PersistenceServiceHost = v
	}
	if v := os.Getenv("TRADING_FEE_PER_MWH"); v != "" {
		cfg.TradingFeePerMWh = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.AdminJWTSecret = v
	}

	cfg.GRPCPort = GetEnvInt("GRPC_PORT", cfg.GRPCPort)
	cfg.TradesServicePort = GetEnvInt("TRADES_SERVICE_PORT", cfg.TradesServicePort)
	cfg.PersistenceServicePort = GetEnvInt("PERSISTENCE_SERVICE_PORT", cfg.PersistenceServicePort)
	cfg.HTTPPort = GetEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.MarketBufferSize = GetEnvInt("MARKET_BUFFER_SIZE", cfg.MarketBufferSize)
	cfg.BatchIntervalMS = GetEnvInt("BATCH_INTERVAL_MS", cfg.BatchIntervalMS)
	cfg.MemoryRetentionMS = GetEnvInt("MEMORY_RETENTION_MS", cfg.MemoryRetentionMS)
	cfg.QueriedRangeRetentionMS = GetEnvInt("QUERIED_RANGE_RETENTION_MS", cfg.QueriedRangeRetentionMS)
	cfg.WaitTimeoutMS = GetEnvInt("WAIT_TIMEOUT_MS", cfg.WaitTimeoutMS)
	cfg.RateLimitRPS = getEnvFloat("API_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = GetEnvInt("API_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.KafkaBrokers) == 0 {
		c.KafkaBrokers = []string{"localhost:9092"}
	}
	if c.MongoURI == "" {
		c.MongoURI = "mongodb://localhost:27017"
	}
	if c.MongoDB == "" {
		c.MongoDB = "powerpnl"
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 50051
	}
	if c.TradesServiceHost == "" {
		c.TradesServiceHost = "localhost"
	}
	if c.TradesServicePort == 0 {
		c.TradesServicePort = 50051
	}
	if c.PersistenceServiceHost == "" {
		c.PersistenceServiceHost = "localhost"
	}
	if c.PersistenceServicePort == 0 {
		c.PersistenceServicePort = 50052
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.BatchIntervalMS == 0 {
		c.BatchIntervalMS = 10000
	}
	if c.MemoryRetentionMS == 0 {
		c.MemoryRetentionMS = 10000
	}
	if c.QueriedRangeRetentionMS == 0 {
		c.QueriedRangeRetentionMS = 60000
	}
	if c.WaitTimeoutMS == 0 {
		c.WaitTimeoutMS = 3000
	}
	if c.MarketBufferSize == 0 {
		c.MarketBufferSize = 100
	}
	if c.TradingFeePerMWh == "" {
		c.TradingFeePerMWh = "0.13"
	}
	if c.RateLimitRPS == 0 {
		// 0 is unset; negative survives as the explicit off switch.
		c.RateLimitRPS = 10
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 20
	}

	c.BatchInterval = time.Duration(c.BatchIntervalMS) * time.Millisecond
	c.MemoryRetention = time.Duration(c.MemoryRetentionMS) * time.Millisecond
	c.QueriedRangeRetention = time.Duration(c.QueriedRangeRetentionMS) * time.Millisecond
	c.WaitTimeout = time.Duration(c.WaitTimeoutMS) * time.Millisecond
}

// TradesServiceAddr returns host:port of the memory service's gRPC endpoint.
func (c *Config) TradesServiceAddr() string {
	return fmt.Sprintf("%s:%d", c.TradesServiceHost, c.TradesServicePort)
}

// PersistenceServiceAddr returns host:port of the persistence service's
// gRPC endpoint.
func (c *Config) PersistenceServiceAddr() string {
	return fmt.Sprintf("%s:%d", c.PersistenceServiceHost, c.PersistenceServicePort)
}

// GetEnvInt parses an integer environment variable, falling back to
// defaultVal when unset or malformed.
func GetEnvInt(key string, defaultVal int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			return val
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			return val
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
