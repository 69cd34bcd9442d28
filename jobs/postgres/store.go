package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/metrics"
)

const backendName = "postgres"

// PostgresOracle implements the jobs.Oracle interface using PostgreSQL
type PostgresOracle struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresOracle creates a new PostgreSQL job oracle
func NewPostgresOracle(dsn string, logger *zap.Logger) (*PostgresOracle, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresOracle{
		db:     db,
		logger: logger,
	}, nil
}

// GetJob returns the descriptor of a job
func (o *PostgresOracle) GetJob(ctx context.Context, jobID int64) (*jobs.Job, error) {
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "get_job").Inc()

	var job jobs.Job
	var projectID sql.NullInt64
	var status string
	err := o.db.QueryRowContext(ctx, _SQL_GET_JOB, jobID).Scan(
		&job.ID,
		&projectID,
		&job.Type,
		&status,
		&job.Exclusive,
		&job.TotalChunks,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}

	job.Status = jobs.Status(status)
	if projectID.Valid {
		job.ProjectID = &projectID.Int64
	}
	return &job, nil
}

// GetStatuses returns the status of each job that still exists
func (o *PostgresOracle) GetStatuses(ctx context.Context, jobIDs []int64) (map[int64]jobs.Status, error) {
	statuses := make(map[int64]jobs.Status, len(jobIDs))
	if len(jobIDs) == 0 {
		return statuses, nil
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "get_statuses").Inc()

	rows, err := o.db.QueryContext(ctx, _SQL_GET_STATUSES, pq.Array(jobIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query job statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan job status: %w", err)
		}
		statuses[id] = jobs.Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job status rows error: %w", err)
	}
	return statuses, nil
}

// IncompleteJobs returns the exclusive pending and running jobs of a project
func (o *PostgresOracle) IncompleteJobs(ctx context.Context, projectID int64) ([]jobs.Summary, error) {
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "incomplete_jobs").Inc()

	rows, err := o.db.QueryContext(ctx, _SQL_INCOMPLETE_JOBS, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete jobs for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var summaries []jobs.Summary
	for rows.Next() {
		var s jobs.Summary
		var status string
		if err := rows.Scan(&s.JobID, &status, &s.TotalChunks); err != nil {
			return nil, fmt.Errorf("failed to scan incomplete job: %w", err)
		}
		s.Status = jobs.Status(status)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("incomplete jobs rows error: %w", err)
	}
	return summaries, nil
}

// UnlockedChunkCounts returns the number of chunks per job still waiting to be dequeued.
// Jobs with no waiting chunks are omitted.
func (o *PostgresOracle) UnlockedChunkCounts(ctx context.Context, jobIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(jobIDs))
	if len(jobIDs) == 0 {
		return counts, nil
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "unlocked_chunk_counts").Inc()

	rows, err := o.db.QueryContext(ctx, _SQL_UNLOCKED_CHUNK_COUNTS, pq.Array(jobIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to count unlocked chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk count rows error: %w", err)
	}
	return counts, nil
}

// PendingChunks lists queued chunks in queue order
func (o *PostgresOracle) PendingChunks(ctx context.Context, projectID *int64, limit int) ([]jobs.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "pending_chunks").Inc()

	var project sql.NullInt64
	if projectID != nil {
		project = sql.NullInt64{Int64: *projectID, Valid: true}
	}

	rows, err := o.db.QueryContext(ctx, _SQL_PENDING_CHUNKS, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	defer rows.Close()

	var chunks []jobs.Chunk
	for rows.Next() {
		var c jobs.Chunk
		var chunkProject sql.NullInt64
		var lockedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.JobID, &chunkProject, &c.Index, &c.Locked, &lockedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if chunkProject.Valid {
			c.ProjectID = &chunkProject.Int64
		}
		if lockedAt.Valid {
			c.LockedAt = &lockedAt.Time
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk rows error: %w", err)
	}
	return chunks, nil
}

// Close closes the database connection
func (o *PostgresOracle) Close() error {
	return o.db.Close()
}
