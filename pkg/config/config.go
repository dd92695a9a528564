package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	Port               string
	LogLevel           string
	DBDriver           string
	DatabaseURL        string
	SQLitePath         string
	JWTSecret          string
	TokenTTL           time.Duration
	RedisURL           string
	ReportCacheTTL     time.Duration
	DefaultLoanDays    int
	SeedAdminUsername  string
	SeedAdminPassword  string
	CORSAllowedOrigins []string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from the environment, after merging a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	tokenHours, err := strconv.Atoi(getEnv("TOKEN_TTL_HOURS", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL_HOURS: %w", err)
	}

	cacheSeconds, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_CACHE_TTL_SECONDS: %w", err)
	}

	loanDays, err := strconv.Atoi(getEnv("DEFAULT_LOAN_DAYS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_LOAN_DAYS: %w", err)
	}
	if loanDays < 0 {
		return nil, fmt.Errorf("invalid DEFAULT_LOAN_DAYS: must not be negative")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: use %s or %s", driver, DriverPostgres, DriverSQLite)
	}

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		Port:               getEnv("PORT", "3000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DBDriver:           driver,
		DatabaseURL:        getEnv("DATABASE_URL", postgresDSNFromParts()),
		SQLitePath:         getEnv("SQLITE_PATH", "library.db"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           time.Duration(tokenHours) * time.Hour,
		RedisURL:           getEnv("REDIS_URL", ""),
		ReportCacheTTL:     time.Duration(cacheSeconds) * time.Second,
		DefaultLoanDays:    loanDays,
		SeedAdminUsername:  getEnv("SEED_ADMIN_USERNAME", "admin"),
		SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", "1234"),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-change-me"
	}

	return cfg, nil
}

func postgresDSNFromParts() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_NAME", "library"),
		getEnv("DB_PORT", "5432"),
	)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
