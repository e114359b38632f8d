// Package config loads runtime configuration from environment
// variables, with an optional .env file applied first.
package config

import (
	"fmt"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// Config is the full runtime configuration.
type Config struct {
	// Backend selects the primary storage backend: file, sqlite or mysql.
	Backend string `env:"XINV_BACKEND" envDefault:"sqlite"`

	// Record cache.
	CacheMaxSize  int           `env:"XINV_CACHE_MAX_SIZE" envDefault:"1000"`
	CacheTTL      time.Duration `env:"XINV_CACHE_TTL" envDefault:"0"`
	CacheDisabled bool          `env:"XINV_CACHE_DISABLED" envDefault:"false"`

	// Write-behind flusher.
	FlushInterval time.Duration `env:"XINV_FLUSH_INTERVAL" envDefault:"30s"`
	FlushWorkers  int           `env:"XINV_FLUSH_WORKERS" envDefault:"4"`

	// File backend.
	FileRoot string `env:"XINV_FILE_ROOT" envDefault:"data/profiles"`

	// SQLite backend.
	SQLitePath string `env:"XINV_SQLITE_PATH" envDefault:"data/profiles.db"`

	// MySQL backend.
	MySQLDSN             string        `env:"XINV_MYSQL_DSN"`
	MySQLMaxOpenConns    int           `env:"XINV_MYSQL_MAX_OPEN_CONNS" envDefault:"10"`
	MySQLMaxIdleConns    int           `env:"XINV_MYSQL_MAX_IDLE_CONNS" envDefault:"4"`
	MySQLConnMaxLifetime time.Duration `env:"XINV_MYSQL_CONN_MAX_LIFETIME" envDefault:"30m"`
	MySQLConnMaxIdleTime time.Duration `env:"XINV_MYSQL_CONN_MAX_IDLE_TIME" envDefault:"5m"`

	// Append stores.
	AuditPath string `env:"XINV_AUDIT_PATH" envDefault:"data/audit.db"`
	VaultPath string `env:"XINV_VAULT_PATH" envDefault:"data/vault.db"`

	// Logging.
	LogDirectory string `env:"XINV_LOG_DIR" envDefault:"log"`
	LogLevel     string `env:"XINV_LOG_LEVEL" envDefault:"info"`
	LogConsole   bool   `env:"XINV_LOG_CONSOLE" envDefault:"true"`
}

// Load applies the optional .env file and parses the environment into a
// validated Config. An empty dotenv path skips the file step.
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := LoadDotenv(dotenv); err != nil {
			return Config{}, err
		}
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMySQL:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendMySQL && c.MySQLDSN == "" {
		return fmt.Errorf("mysql backend requires XINV_MYSQL_DSN")
	}
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("cache max size must be greater than zero")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be greater than zero")
	}
	if c.FlushWorkers <= 0 {
		return fmt.Errorf("flush workers must be greater than zero")
	}
	return nil
}
