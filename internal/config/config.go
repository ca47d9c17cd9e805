// config.go - configuration loading
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

// Config is the top-level configuration for an idpoolctl process: pool
// defaults applied by the PoolMap factory, the sweeper, and the ambient
// logging/metrics/diagnostics/snapshot surfaces.
type Config struct {
	Pool        PoolDefaultsConfig `mapstructure:"pool"`
	PoolMap     PoolMapConfig      `mapstructure:"pool_map"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Diagnostics DiagnosticsConfig  `mapstructure:"diagnostics"`
	Snapshot    SnapshotConfig     `mapstructure:"snapshot"`
}

// LoadConfig loads configuration from configPath, layering environment
// variable overrides (prefixed QUANT_POOL_) over the file and both over
// the spec-mandated defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("QUANT_POOL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults seeds every optional field spec.md §6 and SPEC_FULL.md's
// ambient-stack sections mandate a default for.
func setDefaults(v *viper.Viper) {
	// Pool defaults
	v.SetDefault("pool.capacity", 10)
	v.SetDefault("pool.max_pending", 50)
	v.SetDefault("pool.acquire_timeout", -1*time.Nanosecond)
	v.SetDefault("pool.timeout_mode", "none")
	v.SetDefault("pool.release_health_check", true)
	v.SetDefault("pool.selection_order", "lifo")
	v.SetDefault("pool.dial_timeout", 5*time.Second)

	// PoolMap defaults
	v.SetDefault("pool_map.sweep_interval", 60*time.Second)
	v.SetDefault("pool_map.idle_threshold", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	// Diagnostics defaults
	v.SetDefault("diagnostics.enabled", true)
	v.SetDefault("diagnostics.listen", ":8080")
	v.SetDefault("diagnostics.allowed_origins", []string{"*"})
	v.SetDefault("diagnostics.jwt_required", false)

	// Snapshot defaults
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.path", "idpool-snapshots.db")
	v.SetDefault("snapshot.interval", 30*time.Second)
	v.SetDefault("snapshot.retain", 288) // 2h24m at the default 30s interval
}

// ToPoolConfig translates the mapstructure-friendly PoolDefaultsConfig
// into a pool.Config, resolving its string-typed TimeoutMode and
// SelectionOrder fields into the pool package's enums.
func (c PoolDefaultsConfig) ToPoolConfig() (pool.Config, error) {
	cfg := pool.Config{
		Capacity:           c.Capacity,
		MaxPending:         c.MaxPending,
		AcquireTimeout:     c.AcquireTimeout,
		ReleaseHealthCheck: c.ReleaseHealthCheck,
	}

	switch strings.ToLower(c.TimeoutMode) {
	case "", "none":
		cfg.TimeoutMode = pool.TimeoutModeNone
	case "fail":
		cfg.TimeoutMode = pool.TimeoutModeFail
	case "new":
		cfg.TimeoutMode = pool.TimeoutModeNew
	default:
		return pool.Config{}, fmt.Errorf("unknown timeout_mode %q", c.TimeoutMode)
	}

	switch strings.ToLower(c.SelectionOrder) {
	case "", "lifo":
		cfg.SelectionOrder = pool.LIFO
	case "fifo":
		cfg.SelectionOrder = pool.FIFO
	default:
		return pool.Config{}, fmt.Errorf("unknown selection_order %q", c.SelectionOrder)
	}

	return cfg, nil
}

// ToPoolMapConfig translates PoolMapConfig into pool.PoolMapConfig.
func (c PoolMapConfig) ToPoolMapConfig() pool.PoolMapConfig {
	return pool.PoolMapConfig{
		SweepInterval: c.SweepInterval,
		IdleThreshold: c.IdleThreshold,
	}
}
