package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Polling  PollingConfig  `yaml:"polling"`
	Import   ImportConfig   `yaml:"import"`
	Queue    QueueConfig    `yaml:"queue"`
	DNC      DNCConfig      `yaml:"dnc"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UpstreamConfig holds the upstream calling backend API settings
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollingConfig holds automation synchronizer settings
type PollingConfig struct {
	Enabled            bool `yaml:"enabled"`
	IntervalSeconds    int  `yaml:"interval_seconds"`
	MaxBackoffMultiple int  `yaml:"max_backoff_multiple"`
}

// Interval returns the polling interval as a duration
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ImportConfig holds contact import settings
type ImportConfig struct {
	RequireReferenceDate bool   `yaml:"require_reference_date"`
	ReferenceDateField   string `yaml:"reference_date_field"`
	MaxBatchSize         int    `yaml:"max_batch_size"`
}

// QueueConfig holds dialing queue estimate parameters
type QueueConfig struct {
	CallsPerSecond    float64 `yaml:"calls_per_second"`
	ConcurrencyCap    int     `yaml:"concurrency_cap"`
	AdvisoryThreshold int     `yaml:"advisory_threshold"`
}

// DNCConfig holds do-not-call list settings
type DNCConfig struct {
	Enabled bool     `yaml:"enabled"`
	Lists   []string `yaml:"lists"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Upstream.TimeoutSeconds == 0 {
		cfg.Upstream.TimeoutSeconds = 15
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 5
	}
	if cfg.Polling.MaxBackoffMultiple == 0 {
		cfg.Polling.MaxBackoffMultiple = 8
	}
	if cfg.Import.ReferenceDateField == "" {
		cfg.Import.ReferenceDateField = "referenceDate"
	}
	if cfg.Import.MaxBatchSize == 0 {
		cfg.Import.MaxBatchSize = 10000
	}
	if cfg.Queue.CallsPerSecond == 0 {
		cfg.Queue.CallsPerSecond = 8
	}
	if cfg.Queue.ConcurrencyCap == 0 {
		cfg.Queue.ConcurrencyCap = 80
	}
	if cfg.Queue.AdvisoryThreshold == 0 {
		cfg.Queue.AdvisoryThreshold = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env
// vars, so secrets can live in .env locally and in real env vars in
// deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
		if !cfg.Upstream.Enabled {
			cfg.Upstream.Enabled = true
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
