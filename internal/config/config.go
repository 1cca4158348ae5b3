// Package config provides configuration loading for recordstore.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recordstore/internal/ledger"
	"github.com/roach88/recordstore/internal/smartcode"
)

// Config represents the complete recordstore configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Query    QueryConfig    `yaml:"query"`
}

// DatabaseConfig configures the backing relational store
type DatabaseConfig struct {
	// Driver is sqlite or mysql
	Driver string `yaml:"driver"`
	// DSN is a file path (or :memory:) for sqlite, a go-sql-driver DSN for mysql
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LogConfig configures the logrus logger
type LogConfig struct {
	// Level is a logrus level name (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format is json or text
	Format string `yaml:"format"`
}

// LedgerConfig configures the transaction balance rules
type LedgerConfig struct {
	// BalancedPatterns are smart-code globs whose transactions must net to zero
	BalancedPatterns []string `yaml:"balanced_patterns"`
	// CreditLineTypes are stored sign-inverted
	CreditLineTypes []string `yaml:"credit_line_types"`
	// Tolerance is a decimal string, e.g. "0.005"
	Tolerance       string `yaml:"tolerance"`
	DefaultCurrency string `yaml:"default_currency"`
}

// QueryConfig bounds read pagination
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	rules := ledger.DefaultRules()
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "recordstore.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ledger: LedgerConfig{
			BalancedPatterns: rules.BalancedPatterns,
			CreditLineTypes:  rules.CreditLineTypes,
			Tolerance:        rules.Tolerance.String(),
			DefaultCurrency:  "USD",
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			MaxLimit:     1000,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection limits must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	for _, p := range c.Ledger.BalancedPatterns {
		if !smartcode.ValidPattern(p) {
			return fmt.Errorf("ledger.balanced_patterns: invalid pattern %q", p)
		}
	}
	tol, err := decimal.NewFromString(c.Ledger.Tolerance)
	if err != nil || tol.IsNegative() {
		return fmt.Errorf("ledger.tolerance must be a non-negative decimal, got %q", c.Ledger.Tolerance)
	}
	if len(c.Ledger.DefaultCurrency) != 3 {
		return fmt.Errorf("ledger.default_currency must be a 3-letter code, got %q", c.Ledger.DefaultCurrency)
	}
	if c.Query.DefaultLimit <= 0 || c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query limits must satisfy 0 < default_limit <= max_limit")
	}
	return nil
}

// Rules returns the ledger rules described by the configuration.
// Call after Validate.
func (c *Config) Rules() ledger.Rules {
	tol, err := decimal.NewFromString(c.Ledger.Tolerance)
	if err != nil {
		tol = ledger.DefaultRules().Tolerance
	}
	return ledger.Rules{
		BalancedPatterns: c.Ledger.BalancedPatterns,
		CreditLineTypes:  c.Ledger.CreditLineTypes,
		Tolerance:        tol,
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Database
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.Database.MaxOpenConns != 0 {
		c.Database.MaxOpenConns = other.Database.MaxOpenConns
	}
	if other.Database.MaxIdleConns != 0 {
		c.Database.MaxIdleConns = other.Database.MaxIdleConns
	}
	if other.Database.ConnMaxLifetime != 0 {
		c.Database.ConnMaxLifetime = other.Database.ConnMaxLifetime
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Ledger
	if len(other.Ledger.BalancedPatterns) > 0 {
		c.Ledger.BalancedPatterns = other.Ledger.BalancedPatterns
	}
	if len(other.Ledger.CreditLineTypes) > 0 {
		c.Ledger.CreditLineTypes = other.Ledger.CreditLineTypes
	}
	if other.Ledger.Tolerance != "" {
		c.Ledger.Tolerance = other.Ledger.Tolerance
	}
	if other.Ledger.DefaultCurrency != "" {
		c.Ledger.DefaultCurrency = other.Ledger.DefaultCurrency
	}

	// Query
	if other.Query.DefaultLimit != 0 {
		c.Query.DefaultLimit = other.Query.DefaultLimit
	}
	if other.Query.MaxLimit != 0 {
		c.Query.MaxLimit = other.Query.MaxLimit
	}
}
