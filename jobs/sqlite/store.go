package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/metrics"
)

const backendName = "sqlite"

type SQLiteOracle struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteOracle(dbPath string, logger *zap.Logger) (*SQLiteOracle, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	oracle := &SQLiteOracle{db: db, logger: logger}
	if err := oracle.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return oracle, nil
}

func (o *SQLiteOracle) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS batch_job_types (
    name TEXT PRIMARY KEY,
    exclusive INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batch_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'SUCCESS', 'FAILED', 'CANCELLED', 'PAUSED')),
    total_chunks INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_project_status ON batch_jobs(project_id, status);

CREATE TABLE IF NOT EXISTS batch_job_chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id INTEGER NOT NULL REFERENCES batch_jobs(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    locked INTEGER NOT NULL DEFAULT 0,
    locked_at TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (job_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_batch_job_chunks_job_locked ON batch_job_chunks(job_id, locked);
`

	if _, err := o.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func (o *SQLiteOracle) GetJob(ctx context.Context, jobID int64) (*jobs.Job, error) {
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "get_job").Inc()

	query := `
		SELECT j.id, j.project_id, j.job_type, j.status, COALESCE(t.exclusive, 0),
		       j.total_chunks, j.created_at, j.updated_at
		FROM batch_jobs j
		LEFT JOIN batch_job_types t ON t.name = j.job_type
		WHERE j.id = ?`

	var job jobs.Job
	var projectID sql.NullInt64
	var status, createdAt, updatedAt string
	err := o.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&projectID,
		&job.Type,
		&status,
		&job.Exclusive,
		&job.TotalChunks,
		&createdAt,
		&updatedAt,
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
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

func (o *SQLiteOracle) GetStatuses(ctx context.Context, jobIDs []int64) (map[int64]jobs.Status, error) {
	statuses := make(map[int64]jobs.Status, len(jobIDs))
	if len(jobIDs) == 0 {
		return statuses, nil
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "get_statuses").Inc()

	placeholders, args := inList(jobIDs)
	query := `SELECT id, status FROM batch_jobs WHERE id IN (` + placeholders + `)`

	rows, err := o.db.QueryContext(ctx, query, args...)
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
	return statuses, rows.Err()
}

func (o *SQLiteOracle) IncompleteJobs(ctx context.Context, projectID int64) ([]jobs.Summary, error) {
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "incomplete_jobs").Inc()

	query := `
		SELECT j.id, j.status, j.total_chunks
		FROM batch_jobs j
		JOIN batch_job_types t ON t.name = j.job_type AND t.exclusive = 1
		WHERE j.project_id = ? AND j.status IN ('PENDING', 'RUNNING')
		ORDER BY j.id ASC`

	rows, err := o.db.QueryContext(ctx, query, projectID)
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
	return summaries, rows.Err()
}

func (o *SQLiteOracle) UnlockedChunkCounts(ctx context.Context, jobIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(jobIDs))
	if len(jobIDs) == 0 {
		return counts, nil
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "unlocked_chunk_counts").Inc()

	placeholders, args := inList(jobIDs)
	query := `
		SELECT job_id, COUNT(*)
		FROM batch_job_chunks
		WHERE job_id IN (` + placeholders + `) AND locked = 0
		GROUP BY job_id`

	rows, err := o.db.QueryContext(ctx, query, args...)
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
	return counts, rows.Err()
}

func (o *SQLiteOracle) PendingChunks(ctx context.Context, projectID *int64, limit int) ([]jobs.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	metrics.OracleQueriesTotal.WithLabelValues(backendName, "pending_chunks").Inc()

	query := `
		SELECT c.id, c.job_id, j.project_id, c.chunk_index, c.locked, c.locked_at, c.created_at
		FROM batch_job_chunks c
		JOIN batch_jobs j ON j.id = c.job_id`
	args := []interface{}{}
	if projectID != nil {
		query += ` WHERE j.project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY c.created_at ASC, c.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	defer rows.Close()

	var chunks []jobs.Chunk
	for rows.Next() {
		var c jobs.Chunk
		var chunkProject sql.NullInt64
		var lockedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.JobID, &chunkProject, &c.Index, &c.Locked, &lockedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if chunkProject.Valid {
			c.ProjectID = &chunkProject.Int64
		}
		if lockedAt.Valid {
			t, err := parseTime(lockedAt.String)
			if err != nil {
				return nil, err
			}
			c.LockedAt = &t
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (o *SQLiteOracle) Close() error {
	return o.db.Close()
}

func inList(ids []int64) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t, nil
}
