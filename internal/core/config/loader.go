package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/exlog/internal/infra/storage/postgres"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXLOG"

// ErrMissingField is returned by Validate for a required setting that is empty.
var ErrMissingField = errors.New("missing required config field")

// envOverrides are applied on top of the file. Unset variables leave the file value alone.
type envOverrides struct {
	ApplicationName        string         `envconfig:"APPLICATION_NAME"`
	ApplicationEnvironment string         `envconfig:"APPLICATION_ENVIRONMENT"`
	StoreDriver            string         `envconfig:"STORE_DRIVER"`
	StoreURL               string         `envconfig:"STORE_URL"`
	StoreTransactional     *bool          `envconfig:"STORE_TRANSACTIONAL"`
	StoreRetryWindow       *time.Duration `envconfig:"STORE_RETRY_WINDOW"`
	StoreMigrate           *bool          `envconfig:"STORE_MIGRATE"`
	RedisURL               string         `envconfig:"FAILOVER_REDIS_URL"`
	RedisPassword          string         `envconfig:"FAILOVER_REDIS_PASSWORD"`
	HTTPPort               int            `envconfig:"HTTP_PORT"`
	LogLevel               string         `envconfig:"LOG_LEVEL"`
}

// Load reads configuration from a YAML file, applies EXLOG_* environment overrides and
// defaults, and validates the result. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.ApplicationName != "" {
		cfg.Application.Name = env.ApplicationName
	}
	if env.ApplicationEnvironment != "" {
		cfg.Application.Environment = env.ApplicationEnvironment
	}
	if env.StoreDriver != "" {
		cfg.Store.Driver = env.StoreDriver
	}
	if env.StoreURL != "" {
		cfg.Store.URL = env.StoreURL
	}
	if env.StoreTransactional != nil {
		cfg.Store.Transactional = env.StoreTransactional
	}
	if env.StoreRetryWindow != nil {
		cfg.Store.RetryWindow = *env.StoreRetryWindow
	}
	if env.StoreMigrate != nil {
		cfg.Store.Migrate = *env.StoreMigrate
	}
	if env.RedisURL != "" {
		cfg.Failover.Redis.URL = env.RedisURL
	}
	if env.RedisPassword != "" {
		cfg.Failover.Redis.Password = env.RedisPassword
	}
	if env.HTTPPort != 0 {
		cfg.HTTP.Port = env.HTTPPort
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	return nil
}

func setDefaults(cfg *AppConfig) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverPgx
	}
	if cfg.Store.RetryWindow == 0 {
		cfg.Store.RetryWindow = 10 * time.Second
	}
	if cfg.Failover.Redis.Key == "" {
		cfg.Failover.Redis.Key = "exlog:failover"
	}
	if cfg.Failover.Redis.MaxEntries == 0 {
		cfg.Failover.Redis.MaxEntries = 1000
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.VirtualPath == "" {
		cfg.HTTP.VirtualPath = "/"
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks required settings and store connection strings.
func Validate(cfg *AppConfig) error {
	if strings.TrimSpace(cfg.Application.Name) == "" {
		return fmt.Errorf("%w: application.name", ErrMissingField)
	}
	if strings.TrimSpace(cfg.Application.Environment) == "" {
		return fmt.Errorf("%w: application.environment", ErrMissingField)
	}

	switch cfg.Store.Driver {
	case DriverPgx, DriverPostgres:
		if cfg.Store.URL == "" {
			return fmt.Errorf("%w: store.url", ErrMissingField)
		}
		if err := postgres.ValidateURL(cfg.Store.URL); err != nil {
			return fmt.Errorf("invalid store.url: %w", err)
		}
	case DriverSQLite:
		if cfg.Store.URL == "" {
			return fmt.Errorf("%w: store.url", ErrMissingField)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid store.driver %q: must be pgx, postgres, sqlite or memory", cfg.Store.Driver)
	}

	if cfg.Store.RetryWindow < 0 {
		return fmt.Errorf("invalid store.retry_window %s: must not be negative", cfg.Store.RetryWindow)
	}
	if cfg.Store.MaxConns < 0 || cfg.Store.MinConns < 0 {
		return fmt.Errorf("invalid store pool size: must not be negative")
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", cfg.HTTP.Port)
	}
	return nil
}
