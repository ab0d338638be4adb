package config

import (
	"time"

	redisclient "github.com/vietddude/exlog/internal/infra/redis"
)

// Store drivers.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Application ApplicationConfig `yaml:"application"`
	Store       StoreConfig       `yaml:"store"`
	Failover    FailoverConfig    `yaml:"failover"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ApplicationConfig identifies the process writing exceptions.
type ApplicationConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	// MachineName overrides the host name.
	MachineName string `yaml:"machine_name"`
}

// StoreConfig holds the exception store settings.
type StoreConfig struct {
	Driver        string        `yaml:"driver"` // pgx, postgres, sqlite, memory
	URL           string        `yaml:"url"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	Transactional *bool         `yaml:"transactional"` // default true
	RetryWindow   time.Duration `yaml:"retry_window"`
	Migrate       bool          `yaml:"migrate"`
}

// IsTransactional reports whether each write runs in one transaction.
func (s StoreConfig) IsTransactional() bool {
	return s.Transactional == nil || *s.Transactional
}

// FailoverConfig holds the failover sink settings.
type FailoverConfig struct {
	Stderr *bool               `yaml:"stderr"` // default true
	Redis  FailoverRedisConfig `yaml:"redis"`
}

// StderrEnabled reports whether failover reports are written to stderr.
func (f FailoverConfig) StderrEnabled() bool {
	return f.Stderr == nil || *f.Stderr
}

// FailoverRedisConfig configures the Redis failover list. An empty URL disables it.
type FailoverRedisConfig struct {
	redisclient.Config `yaml:",inline"`
	Key                string `yaml:"key"`
	MaxEntries         int    `yaml:"max_entries"`
}

// HTTPConfig holds the HTTP server and request capture settings.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	SiteName     string        `yaml:"site_name"`
	VirtualPath  string        `yaml:"virtual_path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
