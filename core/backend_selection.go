package core

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/config"
	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/jobs/postgres"
	"github.com/ebogdum/jobgate/jobs/schema"
	"github.com/ebogdum/jobgate/jobs/sqlite"
	"github.com/ebogdum/jobgate/locks"
)

// NewLockStore creates the lock store selected by locking.backend
func NewLockStore(cfg config.AppConfig, logger *zap.Logger) (locks.Store, error) {
	switch cfg.Locking.Backend {
	case config.LockBackendLocal:
		logger.Info("Using in-process lock store; admission is only exclusive within this replica")
		return locks.NewLocalStore(), nil
	case config.LockBackendRedis:
		store, err := locks.NewRedisStore(locks.RedisOptions{
			Addr:              cfg.Redis.Addr,
			Password:          cfg.Redis.Password,
			DB:                cfg.Redis.DB,
			PoolSize:          cfg.Redis.PoolSize,
			KeyPrefix:         cfg.Redis.KeyPrefix,
			ComputeMaxRetries: cfg.Locking.ComputeMaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis lock store: %w", err)
		}
		logger.Info("Using Redis lock store",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("key_prefix", cfg.Redis.KeyPrefix))
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", locks.ErrUnknownBackend, cfg.Locking.Backend)
	}
}

// NewOracle connects to the job store selected by job_store.type
func NewOracle(cfg config.AppConfig, logger *zap.Logger) (jobs.Oracle, error) {
	switch cfg.JobStore.Type {
	case config.JobStorePostgres:
		if cfg.JobStore.RunMigrations {
			logger.Info("Running job store migrations")
			if err := schema.RunMigrations(cfg.JobStore.DSN); err != nil {
				return nil, fmt.Errorf("failed to run job store migrations: %w", err)
			}
		}
		oracle, err := postgres.NewPostgresOracle(cfg.JobStore.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL job store: %w", err)
		}
		return oracle, nil
	case config.JobStoreSQLite:
		oracle, err := sqlite.NewSQLiteOracle(cfg.JobStore.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite job store: %w", err)
		}
		return oracle, nil
	default:
		return nil, fmt.Errorf("unknown job store type %q", cfg.JobStore.Type)
	}
}
