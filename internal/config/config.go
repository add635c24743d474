// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSessionSecret is the signing key used when SESSION_SECRET is unset.
// Validate refuses it outside dev mode.
const DefaultSessionSecret = "devsessionsecret"

// ErrDefaultSecret reports a production config still signing with DefaultSessionSecret.
var ErrDefaultSecret = errors.New("SESSION_SECRET must be set when DEV is false")

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Log      LogConfig
	Auth     AuthConfig
	Billing  BillingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds connection settings. Driver is "postgres" or "sqlite";
// for sqlite only Path is used. RawDSN, when set, replaces the discrete
// postgres fields.
type DatabaseConfig struct {
	Driver   string
	RawDSN   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
	Debug    bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev           bool
	Migrations    bool
	SQLMigrations bool
	Seed          bool
}

// LogConfig mirrors logger.LogConfig so this package stays free of logging deps.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// AuthConfig holds session settings. TrustActorHeader lets an upstream
// gateway pass the acting user in X-Actor-ID.
type AuthConfig struct {
	SessionSecret    string
	TrustActorHeader bool
}

// BillingConfig holds invoice engine settings.
type BillingConfig struct {
	NumberRetries  int
	TimeZone       string
	DefaultTaxRate decimal.Decimal
}

// Location resolves TimeZone, falling back to UTC.
func (b BillingConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(b.TimeZone); err == nil {
		return loc
	}
	return time.UTC
}

// Validate checks settings the server cannot safely start without.
func (c *Config) Validate() error {
	if !c.App.Dev && (c.Auth.SessionSecret == "" || c.Auth.SessionSecret == DefaultSessionSecret) {
		return ErrDefaultSecret
	}
	return nil
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			RawDSN:   getEnv("DATABASE_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "billing"),
			Password: getEnv("DB_PASSWORD", "billing123"),
			DBName:   getEnv("DB_NAME", "billing"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "billing.db"),
			Debug:    getEnvBool("DB_DEBUG", false),
		},
		App: AppConfig{
			Dev:           getEnvBool("DEV", true),
			Migrations:    getEnvBool("MIGRATIONS", false),
			SQLMigrations: getEnvBool("MIGRATIONS_SQL", false),
			Seed:          getEnvBool("DB_SEED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			SessionSecret:    getEnv("SESSION_SECRET", DefaultSessionSecret),
			TrustActorHeader: getEnvBool("AUTH_TRUST_HEADER", false),
		},
		Billing: BillingConfig{
			NumberRetries:  getEnvInt("BILLING_NUMBER_RETRIES", 3),
			TimeZone:       getEnv("BILLING_TIMEZONE", "UTC"),
			DefaultTaxRate: getEnvDecimal("BILLING_DEFAULT_TAX_RATE", decimal.NewFromInt(18)),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
