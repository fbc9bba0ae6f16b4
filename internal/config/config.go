package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string
	Database DatabaseConfig
	RedisURL string
	Auth     AuthConfig
	Time     TimeConfig
	Tenancy  TenancyConfig
}

// DatabaseConfig holds database configuration.
// URL takes precedence over the discrete PG_* settings.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	LogLevel string
}

// AuthConfig holds bearer credential settings
type AuthConfig struct {
	JWTSecret    string
	JWTAlgorithm string
	TokenTTL     time.Duration
}

// TimeConfig controls how timestamps and date tokens are computed
type TimeConfig struct {
	Location *time.Location
	UseTZ    bool
}

// Now returns the current time as it should be stored.
func (c TimeConfig) Now() time.Time {
	now := time.Now()
	if c.UseTZ || c.Location == nil {
		return now.UTC()
	}
	return now.In(c.Location)
}

// TenancyConfig holds the system tenant and bootstrap admin
type TenancyConfig struct {
	DefaultTenantDomain   string
	PlatformAdminUsername string
	PlatformAdminPassword string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	alg := strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256"))
	switch alg {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM %q", alg)
	}

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "2h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid JWT_TTL: %q", os.Getenv("JWT_TTL"))
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Shanghai"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8200"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "riveredge"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		RedisURL: os.Getenv("REDIS_URL"),
		Auth: AuthConfig{
			JWTSecret:    jwtSecret,
			JWTAlgorithm: alg,
			TokenTTL:     ttl,
		},
		Time: TimeConfig{
			Location: loc,
			UseTZ:    getEnv("USE_TZ", "true") == "true",
		},
		Tenancy: TenancyConfig{
			DefaultTenantDomain:   getEnv("DEFAULT_TENANT_DOMAIN", "default"),
			PlatformAdminUsername: getEnv("PLATFORM_ADMIN_USERNAME", "admin"),
			PlatformAdminPassword: os.Getenv("PLATFORM_ADMIN_PASSWORD"),
		},
	}, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
