package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/jobs"
)

func newTestOracle(t *testing.T) *SQLiteOracle {
	t.Helper()
	oracle, err := NewSQLiteOracle(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite oracle: %v", err)
	}
	t.Cleanup(func() { oracle.Close() })

	mustExec(t, oracle, `INSERT INTO batch_job_types (name, exclusive) VALUES ('reindex', 1), ('export', 0)`)
	return oracle
}

func mustExec(t *testing.T, oracle *SQLiteOracle, query string, args ...interface{}) {
	t.Helper()
	if _, err := oracle.db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q failed: %v", query, err)
	}
}

func insertJob(t *testing.T, oracle *SQLiteOracle, id int64, projectID interface{}, jobType string, status jobs.Status, totalChunks int) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	mustExec(t, oracle,
		`INSERT INTO batch_jobs (id, project_id, job_type, status, total_chunks, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, jobType, string(status), totalChunks, now, now)
}

func insertChunk(t *testing.T, oracle *SQLiteOracle, jobID int64, index int, locked bool) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var lockedAt interface{}
	lockedFlag := 0
	if locked {
		lockedAt = now
		lockedFlag = 1
	}
	mustExec(t, oracle,
		`INSERT INTO batch_job_chunks (job_id, chunk_index, locked, locked_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, index, lockedFlag, lockedAt, now)
}

func TestGetJob(t *testing.T) {
	oracle := newTestOracle(t)
	insertJob(t, oracle, 1, int64(10), "reindex", jobs.StatusRunning, 2)
	insertJob(t, oracle, 2, nil, "export", jobs.StatusPending, 1)
	insertJob(t, oracle, 3, int64(10), "unregistered", jobs.StatusPending, 1)

	ctx := context.Background()

	job, err := oracle.GetJob(ctx, 1)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if !job.Exclusive || job.ProjectID == nil || *job.ProjectID != 10 || job.Status != jobs.StatusRunning {
		t.Errorf("unexpected job 1: %+v", job)
	}

	job, err = oracle.GetJob(ctx, 2)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Exclusive || job.ProjectID != nil {
		t.Errorf("unexpected job 2: %+v", job)
	}

	job, err = oracle.GetJob(ctx, 3)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Exclusive {
		t.Error("job with an unregistered type must not be exclusive")
	}

	if _, err := oracle.GetJob(ctx, 99); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStatuses(t *testing.T) {
	oracle := newTestOracle(t)
	insertJob(t, oracle, 1, int64(10), "reindex", jobs.StatusSuccess, 1)
	insertJob(t, oracle, 2, int64(10), "reindex", jobs.StatusRunning, 1)

	statuses, err := oracle.GetStatuses(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("GetStatuses failed: %v", err)
	}
	if len(statuses) != 2 || statuses[1] != jobs.StatusSuccess || statuses[2] != jobs.StatusRunning {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

func TestIncompleteJobs(t *testing.T) {
	oracle := newTestOracle(t)
	insertJob(t, oracle, 1, int64(10), "reindex", jobs.StatusSuccess, 1)
	insertJob(t, oracle, 2, int64(10), "reindex", jobs.StatusPending, 3)
	insertJob(t, oracle, 3, int64(10), "reindex", jobs.StatusRunning, 1)
	insertJob(t, oracle, 4, int64(10), "export", jobs.StatusRunning, 1)
	insertJob(t, oracle, 5, int64(11), "reindex", jobs.StatusRunning, 1)

	summaries, err := oracle.IncompleteJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("IncompleteJobs failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 exclusive incomplete jobs, got %+v", summaries)
	}
	if summaries[0].JobID != 2 || summaries[0].TotalChunks != 3 || summaries[1].JobID != 3 {
		t.Errorf("unexpected summaries: %+v", summaries)
	}
}

func TestUnlockedChunkCountsAndPendingChunks(t *testing.T) {
	oracle := newTestOracle(t)
	insertJob(t, oracle, 1, int64(10), "reindex", jobs.StatusPending, 3)
	insertJob(t, oracle, 2, int64(11), "reindex", jobs.StatusPending, 1)
	insertChunk(t, oracle, 1, 0, true)
	insertChunk(t, oracle, 1, 1, false)
	insertChunk(t, oracle, 1, 2, false)
	insertChunk(t, oracle, 2, 0, true)

	ctx := context.Background()
	counts, err := oracle.UnlockedChunkCounts(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("UnlockedChunkCounts failed: %v", err)
	}
	if counts[1] != 2 {
		t.Errorf("expected 2 unlocked chunks for job 1, got %d", counts[1])
	}
	if _, ok := counts[2]; ok {
		t.Errorf("job 2 has no unlocked chunks, got %d", counts[2])
	}

	project := int64(10)
	chunks, err := oracle.PendingChunks(ctx, &project, 10)
	if err != nil {
		t.Fatalf("PendingChunks failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for project 10, got %d", len(chunks))
	}
	if !chunks[0].Locked || chunks[0].LockedAt == nil {
		t.Errorf("first chunk should be locked: %+v", chunks[0])
	}

	all, err := oracle.PendingChunks(ctx, nil, 0)
	if err != nil {
		t.Fatalf("PendingChunks failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 chunks overall, got %d", len(all))
	}
}
