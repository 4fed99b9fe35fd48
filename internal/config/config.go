package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port          string
	CORSOrigins   string
	MaxImageBytes int

	// Realtime (empty = in-process hub)
	RedisURL string

	// Object store (empty host = images disabled)
	FTPHost     string
	FTPPort     string
	FTPUser     string
	FTPPassword string
	FTPBaseURL  string
	FTPDir      string

	// Broadcast fan-out
	FanoutPageSize      int
	FanoutConcurrency   int
	FanoutMaxAttempts   int
	FanoutRetryBackoff  time.Duration
	FanoutTimeout       time.Duration
	FanoutRetryInterval time.Duration

	// Change triggers
	TriggerQueueSize int
	TriggerWorkers   int

	LogRetentionDays int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "rumorwatch"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:          getEnv("PORT", "8080"),
		CORSOrigins:   getEnv("CORS_ORIGINS", "*"),
		MaxImageBytes: parseInt(getEnv("MAX_IMAGE_BYTES", ""), 5*1024*1024),

		RedisURL: getEnv("REDIS_URL", ""),

		FTPHost:     getEnv("FTP_HOST", ""),
		FTPPort:     getEnv("FTP_PORT", "21"),
		FTPUser:     getEnv("FTP_USER", ""),
		FTPPassword: getEnv("FTP_PASSWORD", ""),
		FTPBaseURL:  getEnv("FTP_BASE_URL", ""),
		FTPDir:      getEnv("FTP_DIR", "report-images"),

		FanoutPageSize:      parseInt(getEnv("FANOUT_PAGE_SIZE", ""), 500),
		FanoutConcurrency:   parseInt(getEnv("FANOUT_CONCURRENCY", ""), 4),
		FanoutMaxAttempts:   parseInt(getEnv("FANOUT_MAX_ATTEMPTS", ""), 3),
		FanoutRetryBackoff:  parseDuration(getEnv("FANOUT_RETRY_BACKOFF", "500ms"), 500*time.Millisecond),
		FanoutTimeout:       parseDuration(getEnv("FANOUT_TIMEOUT", "10m"), 10*time.Minute),
		FanoutRetryInterval: parseDuration(getEnv("FANOUT_RETRY_INTERVAL", "5m"), 5*time.Minute),

		TriggerQueueSize: parseInt(getEnv("TRIGGER_QUEUE_SIZE", ""), 256),
		TriggerWorkers:   parseInt(getEnv("TRIGGER_WORKERS", ""), 2),

		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", ""), 30),
	}
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
