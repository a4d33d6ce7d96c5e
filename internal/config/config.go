package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Accounting AccountingConfig `yaml:"accounting"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// AccountingConfig contains bookkeeping settings
type AccountingConfig struct {
	// Currency code used for display purposes, e.g. "EUR".
	Currency string `yaml:"currency"`
	// LiabilityIntervalMonths is the statute of limitations: for how many
	// months outstanding fees can still be collected.
	LiabilityIntervalMonths int `yaml:"liability_interval_months"`
	// AccountingStart, when set ("2006-01-02"), is the earliest date for
	// which membership dues are generated or kept on the ledger.
	AccountingStart string `yaml:"accounting_start"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	UpdateLiabilities    string `yaml:"update_liabilities"`
	TakeBalanceSnapshots string `yaml:"take_balance_snapshots"`
	StatuteBarredReport  string `yaml:"statute_barred_report"`
	UnbalancedReport     string `yaml:"unbalanced_report"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Accounting
	if val := os.Getenv("LIABILITY_INTERVAL_MONTHS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Accounting.LiabilityIntervalMonths)
	}
	if val := os.Getenv("ACCOUNTING_START"); val != "" {
		c.Accounting.AccountingStart = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// Accounting defaults
	if c.Accounting.LiabilityIntervalMonths == 0 {
		c.Accounting.LiabilityIntervalMonths = 36
	}
	if c.Accounting.LiabilityIntervalMonths < 0 {
		return fmt.Errorf("invalid liability interval: %d", c.Accounting.LiabilityIntervalMonths)
	}
	if c.Accounting.AccountingStart != "" {
		if _, err := time.Parse("2006-01-02", c.Accounting.AccountingStart); err != nil {
			return fmt.Errorf("invalid accounting start date %q: %w", c.Accounting.AccountingStart, err)
		}
	}
	if c.Accounting.Currency == "" {
		c.Accounting.Currency = "EUR"
	}

	// Scheduler defaults
	if c.Scheduler.UpdateLiabilities == "" {
		c.Scheduler.UpdateLiabilities = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.TakeBalanceSnapshots == "" {
		c.Scheduler.TakeBalanceSnapshots = "0 30 0 1 * *" // First day of month at 00:30 UTC
	}
	if c.Scheduler.StatuteBarredReport == "" {
		c.Scheduler.StatuteBarredReport = "0 0 6 1 1 *" // January 1st at 6 AM UTC
	}
	if c.Scheduler.UnbalancedReport == "" {
		c.Scheduler.UnbalancedReport = "0 0 3 * * *" // 3 AM UTC
	}

	return nil
}

// AccountingStartDate returns the parsed accounting start date, or nil when unset.
func (c *Config) AccountingStartDate() *time.Time {
	if c.Accounting.AccountingStart == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", c.Accounting.AccountingStart)
	if err != nil {
		return nil
	}
	return &t
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
