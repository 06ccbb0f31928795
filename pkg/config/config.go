package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External services
	AlphaVantage AlphaVantageConfig
	S3           S3Config
	Snowflake    SnowflakeConfig

	// Extraction
	Extract ExtractConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration for the watermark store.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration (API quota tracking).
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// AlphaVantageConfig holds Alpha Vantage API configuration.
type AlphaVantageConfig struct {
	APIKey  string
	BaseURL string

	// The premium tier allows 75 requests/minute. DailyQuota of 0
	// means no daily cap is enforced.
	RequestsPerMinute int
	DailyQuota        int
}

// S3Config holds the landing bucket configuration.
type S3Config struct {
	Bucket        string
	Region        string
	Prefix        string
	RetentionDays int
}

// SnowflakeConfig holds Snowflake warehouse configuration.
type SnowflakeConfig struct {
	DSN      string // user:pass@account/database/schema?warehouse=wh
	Stage    string // external stage name pointing at the landing bucket
	Database string
	Schema   string
}

// ExtractConfig holds extraction driver defaults.
type ExtractConfig struct {
	Workers int
}

// SchedulerConfig holds cron expressions for the scheduled runs.
type SchedulerConfig struct {
	TimeSeriesCron   string
	FundamentalsCron string
	SymbolsCron      string
	CleanupCron      string
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// External services
		AlphaVantage: AlphaVantageConfig{
			APIKey:            getEnv("ALPHAVANTAGE_API_KEY", ""),
			BaseURL:           getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			RequestsPerMinute: getEnvAsInt("ALPHAVANTAGE_RPM", 75),
			DailyQuota:        getEnvAsInt("ALPHAVANTAGE_DAILY_QUOTA", 0),
		},

		S3: S3Config{
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("AWS_REGION", "us-east-1"),
			Prefix:        getEnv("S3_PREFIX", "landing"),
			RetentionDays: getEnvAsInt("S3_RETENTION_DAYS", 14),
		},

		Snowflake: SnowflakeConfig{
			DSN:      getEnv("SNOWFLAKE_DSN", ""),
			Stage:    getEnv("SNOWFLAKE_STAGE", "AV_LANDING_STAGE"),
			Database: getEnv("SNOWFLAKE_DATABASE", "MARKETDATA"),
			Schema:   getEnv("SNOWFLAKE_SCHEMA", "RAW"),
		},

		Extract: ExtractConfig{
			Workers: getEnvAsInt("EXTRACT_WORKERS", 4),
		},

		Scheduler: SchedulerConfig{
			TimeSeriesCron:   getEnv("SCHEDULE_TIME_SERIES", "0 30 22 * * MON-FRI"),
			FundamentalsCron: getEnv("SCHEDULE_FUNDAMENTALS", "0 0 6 * * SAT"),
			SymbolsCron:      getEnv("SCHEDULE_SYMBOLS", "0 0 5 * * SAT"),
			CleanupCron:      getEnv("SCHEDULE_CLEANUP", "0 0 4 * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.AlphaVantage.RequestsPerMinute <= 0 {
		return fmt.Errorf("ALPHAVANTAGE_RPM must be positive")
	}

	if c.Extract.Workers <= 0 {
		return fmt.Errorf("EXTRACT_WORKERS must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
