// Package config loads the oxypipe command configuration.
//
// Values are resolved in order: defaults, then the YAML file, then environment variables prefixed
// with OXYPIPE_ (for example OXYPIPE_STORAGE_DRIVER=redis).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "OXYPIPE_"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete configuration of the oxypipe command.
type Config struct {
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Importer ImporterConfig `yaml:"importer" envPrefix:"IMPORTER_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is "json" for production output or "console" for development output.
	Format string `yaml:"format" env:"FORMAT"`
}

// StorageConfig configures the download cache.
type StorageConfig struct {
	// Driver is memory, redis or sqlite.
	Driver     string        `yaml:"driver" env:"DRIVER"`
	RedisAddr  string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB    int           `yaml:"redis_db" env:"REDIS_DB"`
	SQLitePath string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
}

// ImporterConfig configures imports.
type ImporterConfig struct {
	CacheImportedAssets bool     `yaml:"cache_imported_assets" env:"CACHE_IMPORTED_ASSETS"`
	AllowedExtensions   []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
	// Workers is the number of object dependencies imported at the same time.
	Workers int `yaml:"workers" env:"WORKERS"`
}

// MetricsConfig configures the Prometheus endpoint of the watch command.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when neither a file nor the environment set a value.
//
// Returns:
//   - *Config: the default configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Driver:     "memory",
			RedisAddr:  "localhost:6379",
			SQLitePath: "oxypipe-cache.db",
			TTL:        24 * time.Hour,
		},
		Importer: ImporterConfig{
			CacheImportedAssets: true,
			Workers:             4,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads the configuration. An empty path skips the file; a missing file is an error.
//
// Parameters:
//   - path: the YAML file, may be empty
//
// Returns:
//   - *Config: the resolved configuration
//   - error: error if the file or the environment cannot be parsed, or the result is invalid
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be used as given.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the offending field
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalidConfig, c.Log.Format)
	}
	if _, err := storage.ParseBackendType(c.Storage.Driver); err != nil {
		return fmt.Errorf("%w: storage.driver: %v", ErrInvalidConfig, err)
	}
	if c.Storage.TTL < 0 {
		return fmt.Errorf("%w: storage.ttl must not be negative", ErrInvalidConfig)
	}
	if c.Importer.Workers < 0 {
		return fmt.Errorf("%w: importer.workers must not be negative", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalidConfig)
	}
	return nil
}

// NewLogger builds the zap logger described by the log section.
//
// Returns:
//   - *zap.Logger: the logger
//   - error: error if the logger cannot be built
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// NewStorage opens the download cache described by the storage section.
//
// Parameters:
//   - logger: the logger handed to the storage
//
// Returns:
//   - storage.Storage: the opened storage
//   - error: error if the driver is unknown or the backend cannot be opened
func (c *Config) NewStorage(logger *zap.Logger) (storage.Storage, error) {
	backend, err := storage.ParseBackendType(c.Storage.Driver)
	if err != nil {
		return nil, err
	}
	opts := []storage.StorageBuilderOption{
		storage.WithLogger(logger),
		storage.WithTTL(c.Storage.TTL),
	}
	switch backend {
	case storage.BackendTypeRedis:
		opts = append(opts, storage.WithRedisAddr(c.Storage.RedisAddr, c.Storage.RedisDB))
	case storage.BackendTypeSQLite:
		opts = append(opts, storage.WithSQLitePath(c.Storage.SQLitePath))
	}
	return storage.NewStorage(backend, opts...)
}
