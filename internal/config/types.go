// types.go - configuration type definitions
package config

import "time"

// LoggingConfig controls the zap logger built by internal/logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MetricsConfig controls the Prometheus exposition surface.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// DiagnosticsConfig controls the chi-based HTTP diagnostics surface
// (healthz/pools/events) that sits alongside metrics.
type DiagnosticsConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	JWTRequired    bool     `mapstructure:"jwt_required"`
}

// PoolMapConfig mirrors pool.PoolMapConfig with mapstructure tags and
// duration strings, since pool.PoolMapConfig itself is not a Viper
// target (it's constructed programmatically by callers of the pool
// package, which may not depend on Viper at all).
type PoolMapConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
}

// PoolDefaultsConfig mirrors pool.Config with mapstructure tags, applied
// to every endpoint a PoolMap's factory sees. There is no per-endpoint
// override.
type PoolDefaultsConfig struct {
	Capacity           int           `mapstructure:"capacity"`
	MaxPending         int           `mapstructure:"max_pending"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	TimeoutMode        string        `mapstructure:"timeout_mode"`
	ReleaseHealthCheck bool          `mapstructure:"release_health_check"`
	SelectionOrder     string        `mapstructure:"selection_order"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
}

// SnapshotConfig controls the bbolt-backed historical stats store.
type SnapshotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`
	Retain   int           `mapstructure:"retain"`
}
