package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Broker   BrokerConfig
	App      AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// CacheConfig holds the Redis caching layer configuration
type CacheConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	TTL      time.Duration
}

// BrokerConfig holds the RabbitMQ click-queue configuration.
// An empty Host disables the broker; clicks are then recorded in-process.
type BrokerConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Queue    string
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL          string // Base URL for generating short links
	Environment      string // "development", "staging", "production"
	ShortCodeLen     int
	ShortCodeRetries int
	MaxAliasLen      int
	MinAliasLen      int
	JWTSecret        string
	IPHashSecret     string // key for the privacy-preserving IP hash
	GeoTablePath     string // offline CIDR->country table; empty disables geo
	ClickBuffer      int    // click dispatcher channel capacity
	UniqueWindow     time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "shortloop"),
			Password: getEnv("DB_PASSWORD", "shortloop_secret"),
			DBName:   getEnv("DB_NAME", "shortloop"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Cache: CacheConfig{
			Host:     getEnv("RDB_HOST", "localhost"),
			Port:     getEnv("RDB_PORT", "6379"),
			User:     getEnv("RDB_USER", ""),
			Password: getEnv("RDB_PASSWORD", ""),
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Broker: BrokerConfig{
			Host:     getEnv("MQ_HOST", ""),
			Port:     getEnv("MQ_PORT", "5672"),
			User:     getEnv("MQ_USER", "guest"),
			Password: getEnv("MQ_PASSWORD", "guest"),
			Queue:    getEnv("MQ_CLICK_QUEUE", "clicks"),
		},
		App: AppConfig{
			BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			ShortCodeLen:     getEnvInt("SHORT_CODE_LENGTH", 7),
			ShortCodeRetries: getEnvInt("SHORT_CODE_MAX_RETRIES", 10),
			MaxAliasLen:      getEnvInt("MAX_ALIAS_LENGTH", 30),
			MinAliasLen:      getEnvInt("MIN_ALIAS_LENGTH", 3),
			JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-me"),
			IPHashSecret:     getEnv("IP_HASH_SECRET", "dev-ip-salt-change-me"),
			GeoTablePath:     getEnv("GEO_TABLE_PATH", ""),
			ClickBuffer:      getEnvInt("CLICK_BUFFER", 10000),
			UniqueWindow:     getEnvDuration("UNIQUE_CLICK_WINDOW", 24*time.Hour),
			RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
			OTLPEndpoint:     getEnv("OTLP_ENDPOINT", ""),
			TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),
		},
	}, nil
}

// Production reports whether the app runs with production hardening
// (private-host rejection in the URL validator, JSON logs).
func (a *AppConfig) Production() bool {
	return a.Environment == "production"
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ConnectionString returns the Redis connection string
func (c *CacheConfig) ConnectionString() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
}

// ConnectionString returns the AMQP connection string
func (b *BrokerConfig) ConnectionString() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", b.User, b.Password, b.Host, b.Port)
}

// Enabled reports whether a click broker is configured
func (b *BrokerConfig) Enabled() bool {
	return b.Host != ""
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
