// Package config provides configuration management for the Estrella messaging service.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/estrella/internal/types"
	"github.com/joho/godotenv"
)

// Quota backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Quota     QuotaConfig
	Levels    LevelsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AutoMigrate     bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns the connection URL shared by the pgx pool and golang-migrate
func (c *PostgresConfig) URL() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration.
// An empty Host disables the activity log.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether a ClickHouse host was configured
func (c *ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// QuotaConfig holds the daily message allowance rules
type QuotaConfig struct {
	// Allowances is the base daily message allowance per level
	Allowances map[types.Level]int
	// BeerBonus is granted to the sender of a beer invitation
	BeerBonus int
	// PromoCodes maps a redeemable code to the bonus it grants
	PromoCodes map[string]int
	// Timezone is the canonical clock used to decide the calendar day
	Timezone string
	// Backend selects the day-keyed counter store: postgres or redis
	Backend string
}

// Location resolves the configured timezone
func (q *QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(q.Timezone)
}

// LevelsConfig holds star thresholds for tier promotion
type LevelsConfig struct {
	SilverStars int
	GoldStars   int
}

// Thresholds converts to the types representation
func (l LevelsConfig) Thresholds() types.LevelThresholds {
	return types.LevelThresholds{SilverStars: l.SilverStars, GoldStars: l.GoldStars}
}

// RateLimitConfig holds HTTP rate limiting configuration (requests per second per user)
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	promoCodes, err := parsePromoCodes(getEnv("QUOTA_PROMO_CODES", "123456:10"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AutoMigrate:     getEnvAsBool("SERVER_AUTO_MIGRATE", false),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "estrella"),
				User:           getEnv("POSTGRES_USER", "estrella"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "estrella"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Quota: QuotaConfig{
			Allowances: map[types.Level]int{
				types.LevelBronze: getEnvAsInt("QUOTA_ALLOWANCE_BRONZE", 5),
				types.LevelSilver: getEnvAsInt("QUOTA_ALLOWANCE_SILVER", 5),
				types.LevelGold:   getEnvAsInt("QUOTA_ALLOWANCE_GOLD", 30),
			},
			BeerBonus:  getEnvAsInt("QUOTA_BEER_BONUS", 10),
			PromoCodes: promoCodes,
			Timezone:   getEnv("QUOTA_TIMEZONE", "UTC"),
			Backend:    strings.ToLower(getEnv("QUOTA_BACKEND", BackendPostgres)),
		},
		Levels: LevelsConfig{
			SilverStars: getEnvAsInt("LEVEL_SILVER_STARS", types.DefaultSilverStars),
			GoldStars:   getEnvAsInt("LEVEL_GOLD_STARS", types.DefaultGoldStars),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the quota and level rules for consistency
func (c *Config) Validate() error {
	if c.Database.Postgres.MaxConnections <= 0 {
		return errors.New("postgres max connections must be positive")
	}

	for _, level := range types.AllLevels {
		allowance, ok := c.Quota.Allowances[level]
		if !ok {
			return fmt.Errorf("missing allowance for level %s", level)
		}
		if allowance < 0 {
			return fmt.Errorf("allowance for level %s cannot be negative", level)
		}
	}

	if c.Quota.BeerBonus <= 0 {
		return errors.New("beer bonus must be positive")
	}

	for code, amount := range c.Quota.PromoCodes {
		if amount <= 0 {
			return fmt.Errorf("promo code %q must grant a positive bonus", code)
		}
	}

	if _, err := c.Quota.Location(); err != nil {
		return fmt.Errorf("invalid quota timezone %q: %w", c.Quota.Timezone, err)
	}

	switch c.Quota.Backend {
	case BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unknown quota backend %q (must be %q or %q)", c.Quota.Backend, BackendPostgres, BackendRedis)
	}

	if c.Levels.SilverStars <= 0 || c.Levels.GoldStars <= c.Levels.SilverStars {
		return fmt.Errorf("invalid level thresholds: silver=%d gold=%d", c.Levels.SilverStars, c.Levels.GoldStars)
	}

	return nil
}

// parsePromoCodes parses "code:amount,code:amount"
func parsePromoCodes(raw string) (map[string]int, error) {
	codes := make(map[string]int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		code, amountStr, ok := strings.Cut(entry, ":")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("malformed promo code entry %q (want code:amount)", entry)
		}

		amount, err := strconv.Atoi(strings.TrimSpace(amountStr))
		if err != nil {
			return nil, fmt.Errorf("malformed promo code amount in %q: %w", entry, err)
		}
		codes[code] = amount
	}
	return codes, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
