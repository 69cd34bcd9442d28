package locks

import (
	"context"
	"sync"
	"time"

	"github.com/ebogdum/jobgate/metrics"
)

const localBackend = "local"

// keyLock serializes computes for one project. refCount tracks waiters so the
// entry can be dropped once nobody needs it.
type keyLock struct {
	mu       sync.Mutex
	refCount int
}

// LocalStore provides in-process lock records for single-replica deployments.
// Computes on the same project are serialized; computes on different projects
// run concurrently and never wait on each other's ComputeFunc.
type LocalStore struct {
	keysMu sync.Mutex
	keys   map[int64]*keyLock

	mu      sync.RWMutex
	records map[int64]JobSet
}

// NewLocalStore creates a new, empty in-memory lock store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		keys:    make(map[int64]*keyLock),
		records: make(map[int64]JobSet),
	}
}

func (s *LocalStore) lockKey(projectID int64) func() {
	s.keysMu.Lock()
	entry, exists := s.keys[projectID]
	if !exists {
		entry = &keyLock{}
		s.keys[projectID] = entry
	}
	entry.refCount++
	s.keysMu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		s.keysMu.Lock()
		entry.refCount--
		if entry.refCount == 0 {
			delete(s.keys, projectID)
		}
		s.keysMu.Unlock()
	}
}

// Compute atomically replaces the record of a project with the result of fn.
func (s *LocalStore) Compute(ctx context.Context, projectID int64, fn ComputeFunc) (JobSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues(localBackend, "compute").Observe(time.Since(start).Seconds())
	}()

	unlock := s.lockKey(projectID)
	defer unlock()

	s.mu.RLock()
	current, exists := s.records[projectID]
	s.mu.RUnlock()

	next, changed, err := fn(cloneOrEmpty(current), exists)
	if err != nil {
		return nil, err
	}
	if !changed {
		return cloneOrEmpty(current), nil
	}

	stored := cloneOrEmpty(next)
	s.mu.Lock()
	s.records[projectID] = stored
	s.mu.Unlock()

	return stored.Clone(), nil
}

// Get returns a copy of the record of a project.
func (s *LocalStore) Get(ctx context.Context, projectID int64) (JobSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current, exists := s.records[projectID]
	return cloneOrEmpty(current), exists, nil
}

// Snapshot returns a copy of every initialized record.
func (s *LocalStore) Snapshot(ctx context.Context) (map[int64]JobSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[int64]JobSet, len(s.records))
	for projectID, jobs := range s.records {
		snapshot[projectID] = jobs.Clone()
	}
	return snapshot, nil
}

// Put overwrites the record of a project.
func (s *LocalStore) Put(ctx context.Context, projectID int64, jobs JobSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockKey(projectID)
	defer unlock()

	s.mu.Lock()
	s.records[projectID] = cloneOrEmpty(jobs)
	s.mu.Unlock()
	return nil
}

// Delete removes the record of a project.
func (s *LocalStore) Delete(ctx context.Context, projectID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockKey(projectID)
	defer unlock()

	s.mu.Lock()
	delete(s.records, projectID)
	s.mu.Unlock()
	return nil
}

// Close clears all local records.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int64]JobSet)
	return nil
}

func cloneOrEmpty(jobs JobSet) JobSet {
	if jobs == nil {
		return NewJobSet()
	}
	return jobs.Clone()
}
