// Package config loads server configuration from defaults, an optional JSON
// file, optional .env files and environment variables, in that order of
// increasing precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Environment string            `json:"environment"`
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Eligibility EligibilityConfig `json:"eligibility"`
	Reconcile   ReconcileConfig   `json:"reconcile"`
	Tracing     TracingConfig     `json:"tracing"`
}

type ServerConfig struct {
	Port string `json:"port"`
	// Comma-separated CORS origins
	AllowedOrigins string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // sqlite3 | postgres
	DSN    string `json:"dsn"`
}

// EligibilityConfig selects where the minimum payout threshold lives.
type EligibilityConfig struct {
	Source        string `json:"source"` // sql | redis
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

type ReconcileConfig struct {
	// Cron spec for the reconciliation scheduler; empty disables it.
	Schedule string `json:"schedule"`
}

type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: "*",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./commission.db",
		},
		Eligibility: EligibilityConfig{
			Source:    "sql",
			RedisAddr: "localhost:6379",
		},
		Tracing: TracingConfig{
			Endpoint: "http://localhost:14268/api/traces",
		},
	}
}

// Load builds the configuration. configFile may be empty. Each of envFiles
// that exists is loaded with godotenv; variables already set in the process
// environment win over .env values.
func Load(configFile string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) error {
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Eligibility.Source, "ELIGIBILITY_SOURCE")
	setString(&cfg.Eligibility.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Eligibility.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.Tracing.Endpoint, "TRACING_ENDPOINT")

	// An explicitly empty schedule disables the scheduler.
	if v, ok := os.LookupEnv("RECONCILE_SCHEDULE"); ok {
		cfg.Reconcile.Schedule = v
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Eligibility.RedisDB = n
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACING_ENABLED: %w", err)
		}
		cfg.Tracing.Enabled = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Origins splits AllowedOrigins into a list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database driver must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	switch c.Eligibility.Source {
	case "sql":
	case "redis":
		if c.Eligibility.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required when eligibility source is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("eligibility source must be sql or redis, got %q", c.Eligibility.Source))
	}
	if c.Reconcile.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid reconcile schedule %q: %w", c.Reconcile.Schedule, err))
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing endpoint is required when tracing is enabled"))
	}
	return errors.Join(errs...)
}
