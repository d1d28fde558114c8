// Package config loads check-engine configuration the way the
// ai-code-assistant exercise's internal/config loads its own: a viper
// instance, a defaults pass, then an optional file plus environment
// overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the check engine daemon.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Server ServerConfig `mapstructure:"server"`
}

// EngineConfig holds the tunables named in spec.md §6.
type EngineConfig struct {
	// TransactionTimeout is the minimum age of a half message before it
	// may be checked.
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`
	// TransactionCheckMax is the number of back-checks a half message may
	// receive before it is permanently discarded.
	TransactionCheckMax int `mapstructure:"transaction_check_max"`
	// FileReservedHours is the store's file-retention window; halves
	// older than this are skipped rather than checked.
	FileReservedHours int `mapstructure:"file_reserved_hours"`
	// ScanInterval is how often the external scheduler re-invokes check().
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	// PerQueueBudget bounds wall-clock work per half queue per tick.
	PerQueueBudget time.Duration `mapstructure:"per_queue_budget"`
	// OpBatchSize is how many op messages fillOpRemoveMap pulls per call.
	OpBatchSize int `mapstructure:"op_batch_size"`
	// EmptyPullRetryLimit bounds consecutive empty half pulls per queue.
	EmptyPullRetryLimit int `mapstructure:"empty_pull_retry_limit"`
}

// ServerConfig holds the status/health HTTP server configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig loads configuration from an optional file plus environment
// variables, falling back to the defaults spec.md §6 describes.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("HALFCHECK")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.transaction_timeout", "6s")
	v.SetDefault("engine.transaction_check_max", 5)
	v.SetDefault("engine.file_reserved_hours", 72)
	v.SetDefault("engine.scan_interval", "60s")
	v.SetDefault("engine.per_queue_budget", "60s")
	v.SetDefault("engine.op_batch_size", 32)
	v.SetDefault("engine.empty_pull_retry_limit", 1)

	v.SetDefault("server.addr", ":8090")
}

// Validate checks the loaded configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.Engine.TransactionTimeout <= 0 {
		return fmt.Errorf("engine.transaction_timeout must be positive")
	}
	if c.Engine.TransactionCheckMax <= 0 {
		return fmt.Errorf("engine.transaction_check_max must be positive")
	}
	if c.Engine.FileReservedHours <= 0 {
		return fmt.Errorf("engine.file_reserved_hours must be positive")
	}
	if c.Engine.OpBatchSize <= 0 {
		return fmt.Errorf("engine.op_batch_size must be positive")
	}
	return nil
}
