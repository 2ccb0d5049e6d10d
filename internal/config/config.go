package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Token      TokenConfig
	Ledger     LedgerConfig
	Identity   IdentityConfig
	Audit      AuditConfig
	Reconciler ReconcilerConfig
	RateLimit  RateLimitConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	Timeout         time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// TokenConfig holds capability token configuration. Keys maps key IDs to
// signing secrets; ActiveKeyID names the key used for issuance while every
// listed key remains valid for verification, so keys can rotate without
// invalidating outstanding tokens.
type TokenConfig struct {
	Keys        map[string]string
	ActiveKeyID string
	UploadTTL   time.Duration
	StreamTTL   time.Duration
}

// LedgerConfig holds quota ledger configuration. Limits apply uniformly to
// every principal. BaseURL and Timeout configure the gateway-side client.
type LedgerConfig struct {
	DailyLimitMB   int64
	StorageLimitMB int64
	Store          string
	BaseURL        string
	Timeout        time.Duration
}

// IdentityConfig holds identity provider adapter configuration. When Endpoint
// is empty the static principal map is used instead; that mode is only
// suitable for local development.
type IdentityConfig struct {
	Endpoint   string
	Timeout    time.Duration
	Principals map[string]string
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	Endpoint   string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// ReconcilerConfig holds reconciliation worker configuration
type ReconcilerConfig struct {
	SweepInterval time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
}

// DailyLimitBytes returns the per-principal daily bandwidth budget in bytes.
func (c LedgerConfig) DailyLimitBytes() int64 {
	return c.DailyLimitMB << 20
}

// StorageLimitBytes returns the per-principal total storage budget in bytes.
func (c LedgerConfig) StorageLimitBytes() int64 {
	return c.StorageLimitMB << 20
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "vaultgate")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "vaultgate")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)
	viper.SetDefault("storage.timeout", "30s")

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Token defaults. Upload windows stay short to limit replay exposure,
	// stream windows run longer.
	viper.SetDefault("token.activeKeyID", "k1")
	viper.SetDefault("token.uploadTTL", "30m")
	viper.SetDefault("token.streamTTL", "60m")

	// Ledger defaults
	viper.SetDefault("ledger.dailyLimitMB", 100)
	viper.SetDefault("ledger.storageLimitMB", 50)
	viper.SetDefault("ledger.store", "postgres")
	viper.SetDefault("ledger.baseURL", "http://localhost:8081")
	viper.SetDefault("ledger.timeout", "5s")

	// Identity defaults
	viper.SetDefault("identity.endpoint", "")
	viper.SetDefault("identity.timeout", "5s")

	// Audit defaults
	viper.SetDefault("audit.endpoint", "http://localhost:5000/logging")
	viper.SetDefault("audit.maxRetries", 3)
	viper.SetDefault("audit.retryDelay", "1s")
	viper.SetDefault("audit.timeout", "10s")

	// Reconciler defaults
	viper.SetDefault("reconciler.sweepInterval", "15m")

	// Rate limit defaults
	viper.SetDefault("ratelimit.rps", 50)
	viper.SetDefault("ratelimit.burst", 100)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")
}
