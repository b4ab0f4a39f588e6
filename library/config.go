package library

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables shared by the lifecycle engine and the fine
// ledger. Fine amounts are in cents.
type Config struct {
	DBPath         string `yaml:"db_path"`
	LoanPeriodDays int    `yaml:"loan_period_days"`
	FineRatePerDay int64  `yaml:"fine_rate_per_day_cents"`
}

// DefaultConfig returns the stock settings: 14-day loans at 50¢ per overdue day.
func DefaultConfig() Config {
	return Config{
		DBPath:         "library.db",
		LoanPeriodDays: 14,
		FineRatePerDay: 50,
	}
}

// LoadConfig reads a yaml config file, filling unset fields with defaults.
// A missing file is not an error; the defaults are returned as is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.LoanPeriodDays <= 0 {
		return fmt.Errorf("loan_period_days must be positive, got %d", c.LoanPeriodDays)
	}
	if c.FineRatePerDay < 0 {
		return fmt.Errorf("fine_rate_per_day_cents must not be negative, got %d", c.FineRatePerDay)
	}
	return nil
}

// LoanPeriod is the configured loan duration.
func (c Config) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

// FormatCents renders a cent amount as dollars, e.g. 250 -> "$2.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
