// Package config loads runtime configuration for the ulftrack CLI and server.
//
// Precedence, highest first: runtime overrides, environment variables
// (ULFTRACK_*), an optional config file, built-in defaults. Study-specific
// settings (data layout, channels, analysis parameters) do not live here;
// they come from the study manifest.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the runtime configuration.
type Config struct {
	// Server configures the status HTTP API.
	Server ServerConfig `mapstructure:"server"`

	// Logging configures the CLI/server logger.
	Logging LoggingConfig `mapstructure:"logging"`

	// Scan configures sensor-reader invocation behavior.
	Scan ScanConfig `mapstructure:"scan"`

	// Journal configures journal locking.
	Journal JournalConfig `mapstructure:"journal"`
}

// ServerConfig configures the status HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile selects the output encoding: STRUCTURED (JSON) or CONSOLE.
	Profile string `mapstructure:"profile"`
}

// ScanConfig configures sensor-reader invocation behavior.
type ScanConfig struct {
	// Concurrency is the number of parallel reader invocations.
	Concurrency int `mapstructure:"concurrency"`

	// RateLimit is the maximum reader invocations per second (0 = unlimited).
	RateLimit float64 `mapstructure:"rate_limit"`
}

// JournalConfig configures journal locking.
type JournalConfig struct {
	// LockTimeout bounds the wait for the journal lock file.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// EnvSpec maps one environment variable to a config path.
type EnvSpec struct {
	// Name is the environment variable name (e.g., "ULFTRACK_PORT").
	Name string

	// Path is the dotted config key it overrides (e.g., "server.port").
	Path string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration from defaults, an optional config file,
// ULFTRACK_* environment variables, and runtime overrides (highest
// precedence). The loaded config is cached for GetConfig.
//
// The config file is located via the ULFTRACK_CONFIG environment variable
// or an ulftrack.yaml in the working directory; a missing file is not an
// error.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("merge runtime overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if
// Load has not been called.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.rate_limit", 0.0)

	v.SetDefault("journal.lock_timeout", "30s")
}

// getEnvSpecs returns the environment variable to config path mappings.
func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: "ULFTRACK_HOST", Path: "server.host"},
		{Name: "ULFTRACK_PORT", Path: "server.port"},
		{Name: "ULFTRACK_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: "ULFTRACK_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: "ULFTRACK_IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: "ULFTRACK_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: "ULFTRACK_LOG_LEVEL", Path: "logging.level"},
		{Name: "ULFTRACK_LOG_PROFILE", Path: "logging.profile"},
		{Name: "ULFTRACK_SCAN_CONCURRENCY", Path: "scan.concurrency"},
		{Name: "ULFTRACK_SCAN_RATE_LIMIT", Path: "scan.rate_limit"},
		{Name: "ULFTRACK_LOCK_TIMEOUT", Path: "journal.lock_timeout"},
	}
}

// readConfigFile merges the optional config file into v. Missing files
// are fine; unreadable or malformed files are not.
func readConfigFile(v *viper.Viper) error {
	if path := os.Getenv("ULFTRACK_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("ulftrack")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}
