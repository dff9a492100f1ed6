// Package config loads application configuration from environment
// variables.  A .env file in the working directory, when present, is loaded
// first; variables already set in the process environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // APP_ENV: dev, test or prod
	Port     string // APP_PORT
	LogLevel string // LOG_LEVEL: debug, info, warn, error

	StorageDriver string // STORAGE_DRIVER: mysql (default) or memory
	DB            DBConfig
	SeedFile      string // SEED_FILE: JSON master data for the memory driver
	Migrate       bool   // DB_MIGRATE: create tables and quota counters on start

	// JWTSecret verifies bearer tokens issued by the identity service.
	// Empty disables verification (local runs only).
	JWTSecret string

	QuotaPolicy     string // QUOTA_POLICY: strict (default) or override
	InstitutionCode string // INSTITUTION_CODE: fallback prefix of admission numbers

	EventsEnabled bool   // EVENTS_ENABLED
	RabbitMQURL   string // RABBITMQ_URL
	EventsQueue   string // EVENTS_QUEUE
	AuditLogDir   string // AUDIT_LOG_DIR: where the consumer appends audit lines
}

// DBConfig is the MySQL connection configuration.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN renders the go-sql-driver/mysql data source name.
func (c DBConfig) DSN() string {
	auth := c.User
	if c.Pass != "" {
		auth = c.User + ":" + c.Pass
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC", auth, c.Host, c.Port, c.Name)
}

// Load reads the configuration.  All missing required variables are
// reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	r := &reader{}
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		StorageDriver:   strings.ToLower(envStr("STORAGE_DRIVER", DriverMySQL)),
		SeedFile:        os.Getenv("SEED_FILE"),
		Migrate:         envBool("DB_MIGRATE", true),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		QuotaPolicy:     envStr("QUOTA_POLICY", "strict"),
		InstitutionCode: envStr("INSTITUTION_CODE", "INST"),
		EventsEnabled:   envBool("EVENTS_ENABLED", false),
		EventsQueue:     envStr("EVENTS_QUEUE", "admission.events"),
		AuditLogDir:     envStr("AUDIT_LOG_DIR", "logs"),
	}

	switch cfg.StorageDriver {
	case DriverMySQL:
		cfg.DB = DBConfig{
			User: r.must("DB_USER"),
			Pass: os.Getenv("DB_PASS"), // empty allowed
			Host: r.must("DB_HOST"),
			Port: envStr("DB_PORT", "3306"),
			Name: r.must("DB_NAME"),
		}
	case DriverMemory:
	default:
		r.fail(fmt.Errorf("invalid STORAGE_DRIVER %q (want %s or %s)", cfg.StorageDriver, DriverMySQL, DriverMemory))
	}
	if cfg.EventsEnabled {
		cfg.RabbitMQURL = r.must("RABBITMQ_URL")
	}
	if cfg.Env == "prod" && cfg.JWTSecret == "" {
		r.fail(errors.New("JWT_SECRET is required when APP_ENV=prod"))
	}
	return cfg, r.err()
}

// reader collects configuration errors so they can be reported at once.
type reader struct {
	errs []error
}

func (r *reader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (r *reader) fail(err error) { r.errs = append(r.errs, err) }

func (r *reader) err() error { return errors.Join(r.errs...) }
