package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppEnv          = "dev"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownTimeout = "10s"

	defaultDatabaseURL     = "appointments.db"
	defaultMaxOpenConns    = 15
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = "30m"
	defaultConnMaxIdleTime = "5m"

	defaultMinAdvance      = "5m"
	defaultOpenAt          = "09:00"
	defaultCloseAt         = "18:00"
	defaultUTCOffset       = "-03:00"
	defaultPageSize        = 10
	defaultMaxPageSize     = 100
	defaultRateLimitReqs   = 60
	defaultRateLimitWindow = "1m"
)

type Config struct {
	AppEnv             string
	Port               string
	LogLevel           string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	Database  DatabaseConfig
	Booking   BookingConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// BookingConfig holds the booking policy. OpenAt and CloseAt are offsets from
// local midnight in the reference zone.
type BookingConfig struct {
	MinAdvance      time.Duration
	OpenAt          time.Duration
	CloseAt         time.Duration
	UTCOffset       time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

type RateLimitConfig struct {
	RedisURL string
	Requests int
	Window   time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = defaultAppEnv
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	var err error
	if cfg.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return nil, err
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" && !IsProdLike(cfg.AppEnv) {
		dbURL = defaultDatabaseURL
	}
	cfg.Database.URL = dbURL
	if cfg.Database.MaxOpenConns, err = parseIntEnv("DB_MAX_OPEN_CONNS", defaultMaxOpenConns); err != nil {
		return nil, err
	}
	if cfg.Database.MaxIdleConns, err = parseIntEnv("DB_MAX_IDLE_CONNS", defaultMaxIdleConns); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxLifetime, err = parseDurationEnv("DB_CONN_MAX_LIFETIME", defaultConnMaxLifetime); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxIdleTime, err = parseDurationEnv("DB_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime); err != nil {
		return nil, err
	}
	autoMigrateDefault := "true"
	if IsProdLike(cfg.AppEnv) {
		autoMigrateDefault = "false"
	}
	cfg.Database.AutoMigrate = parseBoolEnv("DB_AUTO_MIGRATE", autoMigrateDefault)

	if cfg.Booking.MinAdvance, err = parseDurationEnv("BOOKING_MIN_ADVANCE", defaultMinAdvance); err != nil {
		return nil, err
	}
	if cfg.Booking.OpenAt, err = parseClockEnv("BOOKING_OPEN", defaultOpenAt); err != nil {
		return nil, err
	}
	if cfg.Booking.CloseAt, err = parseClockEnv("BOOKING_CLOSE", defaultCloseAt); err != nil {
		return nil, err
	}
	if cfg.Booking.UTCOffset, err = parseOffsetEnv("BOOKING_UTC_OFFSET", defaultUTCOffset); err != nil {
		return nil, err
	}
	if cfg.Booking.DefaultPageSize, err = parseIntEnv("DEFAULT_PAGE_SIZE", defaultPageSize); err != nil {
		return nil, err
	}
	if cfg.Booking.MaxPageSize, err = parseIntEnv("MAX_PAGE_SIZE", defaultMaxPageSize); err != nil {
		return nil, err
	}

	cfg.RateLimit.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if cfg.RateLimit.Requests, err = parseIntEnv("RATE_LIMIT_REQUESTS", defaultRateLimitReqs); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Window, err = parseDurationEnv("RATE_LIMIT_WINDOW", defaultRateLimitWindow); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProd reports whether the service runs in a production-like environment.
func (c *Config) IsProd() bool {
	return IsProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set in %s environment", cfg.AppEnv)
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be > 0")
	}
	if cfg.Database.MaxIdleConns < 0 {
		return fmt.Errorf("DB_MAX_IDLE_CONNS must be >= 0")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.Booking.MinAdvance < 0 {
		return fmt.Errorf("BOOKING_MIN_ADVANCE must be >= 0")
	}
	if cfg.Booking.OpenAt >= cfg.Booking.CloseAt {
		return fmt.Errorf("BOOKING_OPEN must be before BOOKING_CLOSE")
	}
	if cfg.Booking.DefaultPageSize <= 0 || cfg.Booking.MaxPageSize <= 0 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE and MAX_PAGE_SIZE must be > 0")
	}
	if cfg.Booking.DefaultPageSize > cfg.Booking.MaxPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must not exceed MAX_PAGE_SIZE")
	}
	if cfg.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

// parseClockEnv parses an HH:MM wall-clock value into an offset from midnight.
func parseClockEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// parseOffsetEnv parses a fixed UTC offset such as "-03:00" or "Z".
func parseOffsetEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	t, err := time.Parse("Z07:00", value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	_, offset := t.Zone()
	return time.Duration(offset) * time.Second, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
