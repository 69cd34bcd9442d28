package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "JOBGATE_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err != nil {
				continue
			}
			if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
				return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
			}
			break
		}
	}

	// JOBGATE_LOCKING__FAIL_OPEN -> locking.fail_open
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

// Validate checks that required configuration fields are set and consistent
func Validate(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}

	if cfg.Server.InstanceID == "" {
		return errors.New("server.instance_id is required")
	}

	if len(cfg.Auth.APIKeys) == 0 {
		return errors.New("auth.api_keys must contain at least one key")
	}

	if cfg.Locking.MaxConcurrentJobsPerProject < 1 {
		return fmt.Errorf("locking.max_concurrent_jobs_per_project must be at least 1, got %d", cfg.Locking.MaxConcurrentJobsPerProject)
	}

	switch cfg.Locking.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr is required when locking.backend is redis")
		}
	default:
		return fmt.Errorf("locking.backend must be %q or %q, got %q", LockBackendLocal, LockBackendRedis, cfg.Locking.Backend)
	}

	if cfg.Locking.StatsInterval <= 0 {
		return errors.New("locking.stats_interval must be positive")
	}

	switch cfg.JobStore.Type {
	case JobStorePostgres:
		if cfg.JobStore.DSN == "" {
			return errors.New("job_store.dsn is required for the postgres job store")
		}
	case JobStoreSQLite:
		if cfg.JobStore.SQLitePath == "" {
			return errors.New("job_store.sqlite_path is required for the sqlite job store")
		}
	default:
		return fmt.Errorf("job_store.type must be %q or %q, got %q", JobStorePostgres, JobStoreSQLite, cfg.JobStore.Type)
	}

	return nil
}
