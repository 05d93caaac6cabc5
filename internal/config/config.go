// Package config loads and validates the migration configuration.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/transfer"
)

// DBConfig identifies one database. Credentials are accepted here (and via
// environment expansion), never hard-coded and never logged.
type DBConfig struct {
	Engine   string `yaml:"engine"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"` // embedded engines (sqlite)
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"` // postgres only
}

// Descriptor converts the configuration into a connection descriptor.
func (c DBConfig) Descriptor() driver.Descriptor {
	return driver.Descriptor{
		Engine:   c.Engine,
		Host:     c.Host,
		Port:     c.Port,
		Path:     c.Path,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
	}
}

// MigrationConfig holds migration behavior settings.
type MigrationConfig struct {
	Mode             string   `yaml:"mode"`       // "replace" (default) or "append"
	BatchSize        int      `yaml:"batch_size"` // rows per insert batch
	Workers          int      `yaml:"workers"`    // concurrent table transfers
	NumericTolerance float64  `yaml:"numeric_tolerance"`
	Tables           []string `yaml:"tables"`         // only migrate these tables (glob patterns)
	ExcludeTables    []string `yaml:"exclude_tables"` // skip these tables (glob patterns)
	SkipUnmapped     bool     `yaml:"skip_unmapped"`  // drop REJECT columns instead of failing the table
	Force            bool     `yaml:"force"`          // append into pre-existing tables
	DryRun           bool     `yaml:"dry_run"`        // plan only, no writes
	ConnectRetries   int      `yaml:"connect_retries"`
}

// Config holds all configuration for one migration run.
type Config struct {
	Source    DBConfig        `yaml:"source"`
	Target    DBConfig        `yaml:"target"`
	Migration MigrationConfig `yaml:"migration"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes, expanding environment
// variables so credentials can stay out of the file.
func LoadBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func defaultPort(engine string) int {
	switch engine {
	case "postgres", "postgresql", "pg":
		return 5432
	case "mysql", "mariadb":
		return 3306
	case "mssql", "sqlserver":
		return 1433
	default:
		return 0
	}
}

func (c *Config) applyDefaults() {
	if c.Source.Port == 0 {
		c.Source.Port = defaultPort(c.Source.Engine)
	}
	if c.Target.Port == 0 {
		c.Target.Port = defaultPort(c.Target.Engine)
	}

	if c.Migration.Mode == "" {
		c.Migration.Mode = "replace"
	}
	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = transfer.DefaultBatchSize
	}
	if c.Migration.Workers == 0 {
		// Leave headroom for the source and target servers.
		c.Migration.Workers = runtime.NumCPU() - 2
		if c.Migration.Workers < 1 {
			c.Migration.Workers = 1
		}
		if c.Migration.Workers > 8 {
			c.Migration.Workers = 8
		}
	}
	if c.Migration.ConnectRetries == 0 {
		c.Migration.ConnectRetries = 2
	}
}

func (c *Config) validate() error {
	if err := validateDB("source", c.Source); err != nil {
		return err
	}
	if err := validateDB("target", c.Target); err != nil {
		return err
	}

	if _, err := transfer.ParseMode(c.Migration.Mode); err != nil {
		return err
	}
	if c.Migration.BatchSize < 1 {
		return fmt.Errorf("migration.batch_size must be positive")
	}
	if c.Migration.Workers < 1 {
		return fmt.Errorf("migration.workers must be positive")
	}
	if c.Migration.NumericTolerance < 0 {
		return fmt.Errorf("migration.numeric_tolerance must not be negative")
	}
	return nil
}

func validateDB(side string, db DBConfig) error {
	if db.Engine == "" {
		return fmt.Errorf("%s.engine is required", side)
	}
	d, err := driver.Get(db.Engine)
	if err != nil {
		return fmt.Errorf("%s.engine %q is not supported (available: %v)",
			side, db.Engine, driver.Available())
	}
	if d.Engine() == "sqlite" {
		if db.Path == "" {
			return fmt.Errorf("%s.path is required for sqlite", side)
		}
		return nil
	}
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", side)
	}
	if db.Database == "" {
		return fmt.Errorf("%s.database is required", side)
	}
	return nil
}
