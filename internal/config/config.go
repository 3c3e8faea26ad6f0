// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig defines PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// EngineConfig defines evaluation behavior.
type EngineConfig struct {
	PriceFloor float64 `yaml:"price_floor"`
	Workers    int     `yaml:"workers"`
	// FormulaStepBudget caps the work a single formula evaluation may do.
	FormulaStepBudget int `yaml:"formula_step_budget"`
	PageSize          int `yaml:"page_size"`
	WriteRate         int `yaml:"write_rate"`
}

// ScheduleConfig defines cron intervals.
type ScheduleConfig struct {
	RevalueInterval time.Duration `yaml:"revalue_interval"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyDatabaseDefaults(&cfg.Database)
	applyEngineDefaults(&cfg.Engine)
	applyScheduleDefaults(&cfg.Schedule)
	applyLoggingDefaults(&cfg.Logging)
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.Workers == 0 {
		e.Workers = 4
	}
	if e.FormulaStepBudget == 0 {
		e.FormulaStepBudget = 10_000
	}
	if e.PageSize == 0 {
		e.PageSize = 500
	}
	if e.WriteRate == 0 {
		e.WriteRate = 200
	}
}

func applyScheduleDefaults(s *ScheduleConfig) {
	if s.RevalueInterval == 0 {
		s.RevalueInterval = time.Hour
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if cfg.Database.Name == "" {
		errs = append(errs, fmt.Errorf("database.name is required"))
	}
	if cfg.Database.User == "" {
		errs = append(errs, fmt.Errorf("database.user is required"))
	}

	if cfg.Engine.PriceFloor < 0 {
		errs = append(errs, fmt.Errorf("engine.price_floor must not be negative"))
	}
	if cfg.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("engine.workers must be at least 1"))
	}
	if cfg.Schedule.RevalueInterval < time.Minute {
		errs = append(errs, fmt.Errorf("schedule.revalue_interval must be at least 1m"))
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf(
			"logging.format must be text or json (got %q)", cfg.Logging.Format,
		))
	}

	return errors.Join(errs...)
}
