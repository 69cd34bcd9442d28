package locks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/metrics"
)

const (
	redisBackend             = "redis"
	defaultComputeMaxRetries = 16
)

// migrateScript rewrites a legacy record in the current format only if nobody
// replaced it since it was read.
var migrateScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		redis.call("set", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// RedisOptions configures the connection used by RedisStore
type RedisOptions struct {
	Addr              string
	Password          string
	DB                int
	PoolSize          int
	KeyPrefix         string
	ComputeMaxRetries int
}

// RedisStore keeps lock records in Redis so that every replica shares them.
// Computes use optimistic WATCH/MULTI/EXEC transactions on the record key.
type RedisStore struct {
	client     *redis.Client
	logger     *zap.Logger
	prefix     string
	maxRetries int
}

// NewRedisStore creates a new Redis-backed lock store
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MinIdleConns: 5,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, opts.KeyPrefix, opts.ComputeMaxRetries, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string, maxRetries int, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "jobgate:"
	}
	if maxRetries <= 0 {
		maxRetries = defaultComputeMaxRetries
	}
	return &RedisStore{
		client:     client,
		logger:     logger,
		prefix:     prefix,
		maxRetries: maxRetries,
	}
}

// Compute atomically replaces the record of a project with the result of fn.
// fn is re-run whenever another writer changes the record between the read
// and the write.
func (s *RedisStore) Compute(ctx context.Context, projectID int64, fn ComputeFunc) (JobSet, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues(redisBackend, "compute").Observe(time.Since(start).Seconds())
	}()

	key := s.recordKey(projectID)

	var result JobSet
	var migrated bool
	txf := func(tx *redis.Tx) error {
		migrated = false

		current, exists, legacy, err := s.load(ctx, tx, projectID, key)
		if err != nil {
			return err
		}

		next, changed, err := fn(current.Clone(), exists)
		if err != nil {
			return err
		}
		if !changed {
			if !legacy || !exists {
				result = current
				return nil
			}
			next = current
		}

		raw, err := encodeRecord(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err != nil {
			return err
		}

		result = cloneOrEmpty(next)
		migrated = legacy
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			if migrated {
				metrics.LegacyMigrationsTotal.WithLabelValues("compute").Inc()
				s.logger.Info("Migrated legacy lock record",
					zap.Int64("project_id", projectID),
					zap.Int("job_count", result.Len()))
			}
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			metrics.ComputeConflictsTotal.WithLabelValues(redisBackend).Inc()
			s.logger.Debug("Lock record changed during compute, retrying",
				zap.Int64("project_id", projectID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: project %d after %d attempts", ErrComputeConflict, projectID, s.maxRetries)
}

// load reads the record inside a transaction. legacy reports that the stored
// value is not in the current format and must be rewritten on the next write.
func (s *RedisStore) load(ctx context.Context, tx *redis.Tx, projectID int64, key string) (jobs JobSet, exists bool, legacy bool, err error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return NewJobSet(), false, false, nil
		}
		return nil, false, false, fmt.Errorf("failed to read lock record for project %d: %w", projectID, err)
	}

	if current, decodeErr := decodeRecord(raw); decodeErr == nil {
		return current, true, false, nil
	}

	legacyJobs, legacyExists, legacyErr := decodeLegacyRecord(raw)
	if legacyErr != nil {
		s.logger.Warn("Unreadable lock record, treating project as uninitialized",
			zap.Int64("project_id", projectID),
			zap.Error(legacyErr))
		return NewJobSet(), false, true, nil
	}
	return legacyJobs, legacyExists, true, nil
}

// Get returns the record of a project. Failures never surface to the caller:
// a record that cannot be read is reported as uninitialized.
func (s *RedisStore) Get(ctx context.Context, projectID int64) (JobSet, bool, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues(redisBackend, "get").Observe(time.Since(start).Seconds())
	}()

	key := s.recordKey(projectID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return NewJobSet(), false, nil
		}
		metrics.StoreErrorsTotal.WithLabelValues("read").Inc()
		s.logger.Warn("Failed to read lock record, assuming no lock held",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return NewJobSet(), false, nil
	}

	jobs, exists := s.decodeForRead(ctx, projectID, key, raw)
	return jobs, exists, nil
}

// decodeForRead decodes a record read outside of a compute, migrating legacy
// values in place on a best-effort basis.
func (s *RedisStore) decodeForRead(ctx context.Context, projectID int64, key string, raw []byte) (JobSet, bool) {
	if current, err := decodeRecord(raw); err == nil {
		return current, true
	}

	legacyJobs, exists, err := decodeLegacyRecord(raw)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("read").Inc()
		s.logger.Warn("Unreadable lock record, assuming no lock held",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return NewJobSet(), false
	}
	if exists {
		s.migrateLegacy(ctx, projectID, key, raw, legacyJobs)
	}
	return legacyJobs, exists
}

func (s *RedisStore) migrateLegacy(ctx context.Context, projectID int64, key string, raw []byte, jobs JobSet) {
	encoded, err := encodeRecord(jobs)
	if err != nil {
		s.logger.Warn("Failed to encode migrated lock record", zap.Int64("project_id", projectID), zap.Error(err))
		return
	}

	replaced, err := migrateScript.Run(ctx, s.client, []string{key}, string(raw), string(encoded)).Int()
	if err != nil {
		s.logger.Warn("Failed to persist migrated lock record",
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return
	}
	if replaced == 1 {
		metrics.LegacyMigrationsTotal.WithLabelValues("read").Inc()
		s.logger.Info("Migrated legacy lock record on read",
			zap.Int64("project_id", projectID),
			zap.Int("job_count", jobs.Len()))
	}
}

// Snapshot returns every initialized record.
func (s *RedisStore) Snapshot(ctx context.Context) (map[int64]JobSet, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues(redisBackend, "snapshot").Observe(time.Since(start).Seconds())
	}()

	snapshot := make(map[int64]JobSet)
	iter := s.client.Scan(ctx, 0, s.recordKeyPattern(), 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		projectID, err := strconv.ParseInt(strings.TrimPrefix(key, s.recordKeyPrefix()), 10, 64)
		if err != nil {
			s.logger.Debug("Skipping foreign key in lock namespace", zap.String("key", key))
			continue
		}

		jobs, exists, err := s.Get(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if exists {
			snapshot[projectID] = jobs
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan lock records: %w", err)
	}
	return snapshot, nil
}

// Put overwrites the record of a project.
func (s *RedisStore) Put(ctx context.Context, projectID int64, jobs JobSet) error {
	raw, err := encodeRecord(jobs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.recordKey(projectID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write lock record for project %d: %w", projectID, err)
	}
	return nil
}

// Delete removes the record of a project.
func (s *RedisStore) Delete(ctx context.Context, projectID int64) error {
	if err := s.client.Del(ctx, s.recordKey(projectID)).Err(); err != nil {
		return fmt.Errorf("failed to delete lock record for project %d: %w", projectID, err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) recordKeyPrefix() string {
	return s.prefix + "project-lock:"
}

func (s *RedisStore) recordKeyPattern() string {
	return s.recordKeyPrefix() + "*"
}

func (s *RedisStore) recordKey(projectID int64) string {
	return s.recordKeyPrefix() + strconv.FormatInt(projectID, 10)
}
