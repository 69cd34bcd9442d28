package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Locking.MaxConcurrentJobsPerProject != 1 {
		t.Errorf("expected default limit 1, got %d", cfg.Locking.MaxConcurrentJobsPerProject)
	}
	if cfg.Locking.Backend != LockBackendLocal {
		t.Errorf("expected local backend, got %q", cfg.Locking.Backend)
	}
	if !cfg.Locking.FailOpen {
		t.Error("expected fail_open to default to true")
	}
	if cfg.Locking.StatsInterval != 30*time.Second {
		t.Errorf("expected 30s stats interval, got %v", cfg.Locking.StatsInterval)
	}
	if cfg.Redis.KeyPrefix != "jobgate:" {
		t.Errorf("expected jobgate: key prefix, got %q", cfg.Redis.KeyPrefix)
	}
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobgate.yaml")
	content := `
server:
  listen_addr: ":9000"
  instance_id: "replica-a"
locking:
  max_concurrent_jobs_per_project: 4
  backend: redis
redis:
  addr: "redis:6379"
job_store:
  type: sqlite
  sqlite_path: /tmp/jobs.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.InstanceID != "replica-a" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Locking.MaxConcurrentJobsPerProject != 4 {
		t.Errorf("expected limit 4, got %d", cfg.Locking.MaxConcurrentJobsPerProject)
	}
	if cfg.Locking.Backend != LockBackendRedis || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected lock store config: %+v %+v", cfg.Locking, cfg.Redis)
	}
	if cfg.JobStore.Type != JobStoreSQLite || cfg.JobStore.SQLitePath != "/tmp/jobs.db" {
		t.Errorf("unexpected job store config: %+v", cfg.JobStore)
	}
	// untouched keys keep their defaults
	if cfg.Locking.ComputeMaxRetries != 16 {
		t.Errorf("expected default retries, got %d", cfg.Locking.ComputeMaxRetries)
	}
}

func TestLoadConfigFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobgate.json")
	content := `{"locking": {"max_concurrent_jobs_per_project": 3, "fail_open": false}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.Locking.MaxConcurrentJobsPerProject != 3 || cfg.Locking.FailOpen {
		t.Errorf("unexpected locking config: %+v", cfg.Locking)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobgate.yaml")
	if err := os.WriteFile(path, []byte("locking:\n  max_concurrent_jobs_per_project: 4\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("JOBGATE_LOCKING__MAX_CONCURRENT_JOBS_PER_PROJECT", "7")
	t.Setenv("JOBGATE_LOCKING__FAIL_OPEN", "false")
	t.Setenv("JOBGATE_REDIS__KEY_PREFIX", "staging:")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.Locking.MaxConcurrentJobsPerProject != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Locking.MaxConcurrentJobsPerProject)
	}
	if cfg.Locking.FailOpen {
		t.Error("expected env to disable fail_open")
	}
	if cfg.Redis.KeyPrefix != "staging:" {
		t.Errorf("expected staging: prefix, got %q", cfg.Redis.KeyPrefix)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *AppConfig)
		shouldError bool
	}{
		{name: "defaults", mutate: func(cfg *AppConfig) {}},
		{name: "zero limit", mutate: func(cfg *AppConfig) { cfg.Locking.MaxConcurrentJobsPerProject = 0 }, shouldError: true},
		{name: "negative limit", mutate: func(cfg *AppConfig) { cfg.Locking.MaxConcurrentJobsPerProject = -2 }, shouldError: true},
		{name: "unknown backend", mutate: func(cfg *AppConfig) { cfg.Locking.Backend = "etcd" }, shouldError: true},
		{name: "redis without addr", mutate: func(cfg *AppConfig) {
			cfg.Locking.Backend = LockBackendRedis
			cfg.Redis.Addr = ""
		}, shouldError: true},
		{name: "unknown job store", mutate: func(cfg *AppConfig) { cfg.JobStore.Type = "mysql" }, shouldError: true},
		{name: "postgres without dsn", mutate: func(cfg *AppConfig) { cfg.JobStore.DSN = "" }, shouldError: true},
		{name: "sqlite without path", mutate: func(cfg *AppConfig) {
			cfg.JobStore.Type = JobStoreSQLite
			cfg.JobStore.SQLitePath = ""
		}, shouldError: true},
		{name: "no api keys", mutate: func(cfg *AppConfig) { cfg.Auth.APIKeys = nil }, shouldError: true},
		{name: "no listen addr", mutate: func(cfg *AppConfig) { cfg.Server.ListenAddr = "" }, shouldError: true},
		{name: "zero stats interval", mutate: func(cfg *AppConfig) { cfg.Locking.StatsInterval = 0 }, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.shouldError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
