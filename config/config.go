// Package config provides configuration management for jobgate.
// It handles loading and validating configuration from YAML/JSON files and environment variables.
package config

import "time"

// Supported lock store backends
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Supported job store types
const (
	JobStorePostgres = "postgres"
	JobStoreSQLite   = "sqlite"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Locking  LockingConfig  `koanf:"locking"`
	Redis    RedisConfig    `koanf:"redis"`
	JobStore JobStoreConfig `koanf:"job_store"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `koanf:"listen_addr"`
	InstanceID     string        `koanf:"instance_id"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	LockOpTimeout  time.Duration `koanf:"lock_op_timeout"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"`   // Mutating admin requests per second per client
	RateLimitBurst int           `koanf:"rate_limit_burst"` // Burst allowance for mutating admin requests
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `koanf:"api_keys"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// LockingConfig holds admission control configuration
type LockingConfig struct {
	MaxConcurrentJobsPerProject int           `koanf:"max_concurrent_jobs_per_project"`
	Backend                     string        `koanf:"backend"` // "local" or "redis"
	ComputeMaxRetries           int           `koanf:"compute_max_retries"`
	FailOpen                    bool          `koanf:"fail_open"` // Admit jobs when the lock store is unavailable
	StatsInterval               time.Duration `koanf:"stats_interval"`
	DescriptorCacheTTL          time.Duration `koanf:"descriptor_cache_ttl"`
}

// RedisConfig holds the shared lock store connection
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
	PoolSize  int    `koanf:"pool_size"`
}

// JobStoreConfig holds the job store the locking layer reconciles against
type JobStoreConfig struct {
	Type          string `koanf:"type"` // "postgres" or "sqlite"
	DSN           string `koanf:"dsn"`
	SQLitePath    string `koanf:"sqlite_path"`
	RunMigrations bool   `koanf:"run_migrations"`
}
