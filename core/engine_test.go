package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/config"
	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/locks"
)

type stubOracle struct {
	mu      sync.Mutex
	jobs    map[int64]*jobs.Job
	chunks  []jobs.Chunk
	getJobs int
	err     error
}

func newStubOracle() *stubOracle {
	return &stubOracle{jobs: make(map[int64]*jobs.Job)}
}

func (o *stubOracle) addExclusive(jobID, projectID int64, status jobs.Status) {
	project := projectID
	o.jobs[jobID] = &jobs.Job{ID: jobID, ProjectID: &project, Type: "report", Status: status, Exclusive: true, TotalChunks: 1}
}

func (o *stubOracle) GetJob(ctx context.Context, jobID int64) (*jobs.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.getJobs++
	if o.err != nil {
		return nil, o.err
	}
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (o *stubOracle) GetStatuses(ctx context.Context, jobIDs []int64) (map[int64]jobs.Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	statuses := make(map[int64]jobs.Status)
	for _, id := range jobIDs {
		if job, ok := o.jobs[id]; ok {
			statuses[id] = job.Status
		}
	}
	return statuses, nil
}

func (o *stubOracle) IncompleteJobs(ctx context.Context, projectID int64) ([]jobs.Summary, error) {
	return nil, nil
}

func (o *stubOracle) UnlockedChunkCounts(ctx context.Context, jobIDs []int64) (map[int64]int, error) {
	return map[int64]int{}, nil
}

func (o *stubOracle) PendingChunks(ctx context.Context, projectID *int64, limit int) ([]jobs.Chunk, error) {
	var result []jobs.Chunk
	for _, c := range o.chunks {
		if projectID != nil && (c.ProjectID == nil || *c.ProjectID != *projectID) {
			continue
		}
		if len(result) == limit {
			break
		}
		result = append(result, c)
	}
	return result, nil
}

func (o *stubOracle) Close() error {
	return nil
}

func newTestEngine(t *testing.T, oracle *stubOracle, limit int) (*Engine, locks.Store) {
	t.Helper()
	store := locks.NewLocalStore()
	manager, err := locks.NewManager(store, oracle, locks.Options{MaxConcurrentJobsPerProject: limit, FailOpen: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	engine := NewEngine(manager, oracle, NewDescriptorCache(time.Minute, 10), "test-instance", zap.NewNop())
	t.Cleanup(engine.Close)
	return engine, store
}

func TestEngineAdmitAndRelease(t *testing.T) {
	oracle := newStubOracle()
	oracle.addExclusive(1, 7, jobs.StatusPending)
	oracle.addExclusive(2, 7, jobs.StatusPending)
	engine, _ := newTestEngine(t, oracle, 1)
	ctx := context.Background()

	if admitted, err := engine.Admit(ctx, 1); err != nil || !admitted {
		t.Fatalf("expected job 1 admitted, got %v %v", admitted, err)
	}
	if admitted, err := engine.Admit(ctx, 2); err != nil || admitted {
		t.Fatalf("expected job 2 rejected, got %v %v", admitted, err)
	}

	if err := engine.Release(ctx, 1); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if admitted, err := engine.Admit(ctx, 2); err != nil || !admitted {
		t.Fatalf("expected job 2 admitted after release, got %v %v", admitted, err)
	}
}

func TestEngineReleaseErrors(t *testing.T) {
	oracle := newStubOracle()
	oracle.jobs[3] = &jobs.Job{ID: 3, Status: jobs.StatusRunning, Exclusive: true}
	oracle.jobs[4] = &jobs.Job{ID: 4, Status: jobs.StatusRunning}
	engine, _ := newTestEngine(t, oracle, 1)
	ctx := context.Background()

	if err := engine.Release(ctx, 404); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := engine.Release(ctx, 3); !errors.Is(err, locks.ErrIllegalState) {
		t.Errorf("expected ErrIllegalState, got %v", err)
	}
	if err := engine.Release(ctx, 4); err != nil {
		t.Errorf("releasing a non-exclusive job must be a no-op, got %v", err)
	}
}

func TestEngineLockRecordStates(t *testing.T) {
	oracle := newStubOracle()
	oracle.addExclusive(1, 8, jobs.StatusRunning)
	oracle.addExclusive(2, 8, jobs.StatusSuccess)
	engine, store := newTestEngine(t, oracle, 3)
	ctx := context.Background()

	record, err := engine.LockRecord(ctx, 8)
	if err != nil {
		t.Fatalf("LockRecord failed: %v", err)
	}
	if record.Status != RecordUninitialized || len(record.Jobs) != 0 {
		t.Errorf("unexpected record: %+v", record)
	}

	_ = store.Put(ctx, 9, locks.NewJobSet())
	record, _ = engine.LockRecord(ctx, 9)
	if record.Status != RecordUnlocked {
		t.Errorf("expected UNLOCKED, got %s", record.Status)
	}

	_ = store.Put(ctx, 8, locks.NewJobSet(1, 2, 99))
	record, err = engine.LockRecord(ctx, 8)
	if err != nil {
		t.Fatalf("LockRecord failed: %v", err)
	}
	if record.Status != RecordLocked || record.Limit != 3 {
		t.Fatalf("unexpected record: %+v", record)
	}

	expected := []HeldJob{
		{ID: 1, Type: "report", Status: jobs.StatusRunning},
		{ID: 2, Type: "report", Status: jobs.StatusSuccess, Stale: true},
		{ID: 99, Status: StatusUnknown, Stale: true},
	}
	if len(record.Jobs) != len(expected) {
		t.Fatalf("expected %d jobs, got %+v", len(expected), record.Jobs)
	}
	for i := range expected {
		if record.Jobs[i] != expected[i] {
			t.Errorf("job %d: got %+v, want %+v", i, record.Jobs[i], expected[i])
		}
	}
}

func TestEngineLockRecordsUsesDescriptorCache(t *testing.T) {
	oracle := newStubOracle()
	oracle.addExclusive(1, 10, jobs.StatusRunning)
	oracle.addExclusive(2, 11, jobs.StatusRunning)
	engine, store := newTestEngine(t, oracle, 1)
	ctx := context.Background()
	_ = store.Put(ctx, 11, locks.NewJobSet(2))
	_ = store.Put(ctx, 10, locks.NewJobSet(1))

	records, err := engine.LockRecords(ctx)
	if err != nil {
		t.Fatalf("LockRecords failed: %v", err)
	}
	if len(records) != 2 || records[0].ProjectID != 10 || records[1].ProjectID != 11 {
		t.Fatalf("unexpected records: %+v", records)
	}

	if _, err := engine.LockRecords(ctx); err != nil {
		t.Fatalf("LockRecords failed: %v", err)
	}
	if oracle.getJobs != 2 {
		t.Errorf("expected descriptors to be served from cache, oracle called %d times", oracle.getJobs)
	}
}

func TestEngineLockRecordPropagatesOracleErrors(t *testing.T) {
	oracle := newStubOracle()
	engine, store := newTestEngine(t, oracle, 1)
	ctx := context.Background()
	_ = store.Put(ctx, 12, locks.NewJobSet(5))
	oracle.err = errors.New("connection reset")

	if _, err := engine.LockRecord(ctx, 12); err == nil {
		t.Error("expected oracle error")
	}
}

func TestEngineAdminOperations(t *testing.T) {
	oracle := newStubOracle()
	engine, store := newTestEngine(t, oracle, 2)
	ctx := context.Background()
	_ = store.Put(ctx, 1, locks.NewJobSet(30, 10))
	_ = store.Put(ctx, 2, locks.NewJobSet(20))

	ids, err := engine.LockedJobIDs(ctx)
	if err != nil {
		t.Fatalf("LockedJobIDs failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 20 || ids[2] != 30 {
		t.Errorf("unexpected ids: %v", ids)
	}

	if err := engine.ClearProject(ctx, 1); err != nil {
		t.Fatalf("ClearProject failed: %v", err)
	}
	if record, _ := engine.LockRecord(ctx, 1); record.Status != RecordUnlocked {
		t.Errorf("expected UNLOCKED after clear, got %s", record.Status)
	}

	if err := engine.RemoveProject(ctx, 2); err != nil {
		t.Fatalf("RemoveProject failed: %v", err)
	}
	if record, _ := engine.LockRecord(ctx, 2); record.Status != RecordUninitialized {
		t.Errorf("expected UNINITIALIZED after remove, got %s", record.Status)
	}
}

func TestEnginePendingQueue(t *testing.T) {
	oracle := newStubOracle()
	p1, p2 := int64(1), int64(2)
	oracle.chunks = []jobs.Chunk{
		{ID: 1, JobID: 1, ProjectID: &p1},
		{ID: 2, JobID: 2, ProjectID: &p2},
		{ID: 3, JobID: 1, ProjectID: &p1},
	}
	engine, _ := newTestEngine(t, oracle, 1)

	chunks, err := engine.PendingQueue(context.Background(), &p1, 10)
	if err != nil {
		t.Fatalf("PendingQueue failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks for project 1, got %d", len(chunks))
	}
}

func TestNewLockStoreSelection(t *testing.T) {
	cfg := config.DefaultAppConfig()
	store, err := NewLockStore(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLockStore failed: %v", err)
	}
	if _, ok := store.(*locks.LocalStore); !ok {
		t.Errorf("expected LocalStore, got %T", store)
	}

	cfg.Locking.Backend = "zookeeper"
	if _, err := NewLockStore(cfg, zap.NewNop()); !errors.Is(err, locks.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNewOracleSQLite(t *testing.T) {
	cfg := config.DefaultAppConfig()
	cfg.JobStore.Type = config.JobStoreSQLite
	cfg.JobStore.SQLitePath = ":memory:"

	oracle, err := NewOracle(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOracle failed: %v", err)
	}
	defer oracle.Close()

	if _, err := oracle.GetJob(context.Background(), 1); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound from empty job store, got %v", err)
	}

	cfg.JobStore.Type = "mongodb"
	if _, err := NewOracle(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown job store type")
	}
}
