// Package core wires the admission manager to the job store for the
// administration surface.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/locks"
)

// Record states reported by the admin view
const (
	RecordUninitialized = "UNINITIALIZED"
	RecordUnlocked      = "UNLOCKED"
	RecordLocked        = "LOCKED"
)

// StatusUnknown marks a held job the job store no longer knows about
const StatusUnknown jobs.Status = "UNKNOWN"

const defaultDescriptorCacheSize = 1000

// HeldJob is one job occupying a project slot, annotated from the job store
type HeldJob struct {
	ID     int64       `json:"id"`
	Type   string      `json:"type,omitempty"`
	Status jobs.Status `json:"status"`
	Stale  bool        `json:"stale"` // Will be dropped by the next admission for this project
}

// LockRecord is the admin view of one project's lock record
type LockRecord struct {
	ProjectID int64     `json:"project_id"`
	Status    string    `json:"status"`
	Limit     int       `json:"limit"`
	Jobs      []HeldJob `json:"jobs"`
}

// Engine represents the core jobgate engine that orchestrates admin operations
type Engine struct {
	manager     *locks.Manager
	oracle      jobs.Oracle
	descriptors *DescriptorCache
	instanceID  string
	logger      *zap.Logger
}

// NewEngine creates a new core engine instance
func NewEngine(manager *locks.Manager, oracle jobs.Oracle, descriptors *DescriptorCache, instanceID string, logger *zap.Logger) *Engine {
	if descriptors == nil {
		descriptors = NewDescriptorCache(0, defaultDescriptorCacheSize)
	}
	return &Engine{
		manager:     manager,
		oracle:      oracle,
		descriptors: descriptors,
		instanceID:  instanceID,
		logger:      logger,
	}
}

// GetCurrentInstanceID returns the current instance ID
func (e *Engine) GetCurrentInstanceID() string {
	return e.instanceID
}

// Admit runs admission for a job
func (e *Engine) Admit(ctx context.Context, jobID int64) (bool, error) {
	admitted, err := e.manager.CanLockJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	e.logger.Info("Admission requested",
		zap.Int64("job_id", jobID),
		zap.Bool("admitted", admitted))
	return admitted, nil
}

// Release frees the slot held by a job. The project is taken from the job
// descriptor; releasing a non-exclusive job is a no-op.
func (e *Engine) Release(ctx context.Context, jobID int64) error {
	job, err := e.oracle.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to resolve job %d: %w", jobID, err)
	}
	if !job.Exclusive {
		return nil
	}
	if job.ProjectID == nil {
		return fmt.Errorf("%w: job %d", locks.ErrIllegalState, jobID)
	}
	e.descriptors.Invalidate(jobID)
	return e.manager.UnlockJob(ctx, *job.ProjectID, jobID)
}

// LockRecords returns every initialized lock record ordered by project
func (e *Engine) LockRecords(ctx context.Context) ([]LockRecord, error) {
	snapshot, err := e.manager.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lock records: %w", err)
	}

	projectIDs := make([]int64, 0, len(snapshot))
	for id := range snapshot {
		projectIDs = append(projectIDs, id)
	}
	sort.Slice(projectIDs, func(i, j int) bool { return projectIDs[i] < projectIDs[j] })

	records := make([]LockRecord, 0, len(projectIDs))
	for _, id := range projectIDs {
		record, err := e.annotate(ctx, id, snapshot[id], true)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// LockRecord returns the lock record of one project
func (e *Engine) LockRecord(ctx context.Context, projectID int64) (LockRecord, error) {
	held, exists, err := e.manager.Record(ctx, projectID)
	if err != nil {
		return LockRecord{}, fmt.Errorf("failed to read lock record of project %d: %w", projectID, err)
	}
	return e.annotate(ctx, projectID, held, exists)
}

// LockedJobIDs returns every job holding a slot in ascending order
func (e *Engine) LockedJobIDs(ctx context.Context) ([]int64, error) {
	all, err := e.manager.LockedJobIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locked jobs: %w", err)
	}
	return locks.SortedIDs(all), nil
}

// ClearProject empties the record of a project
func (e *Engine) ClearProject(ctx context.Context, projectID int64) error {
	return e.manager.ClearProject(ctx, projectID)
}

// RemoveProject deletes the record of a project
func (e *Engine) RemoveProject(ctx context.Context, projectID int64) error {
	return e.manager.RemoveProject(ctx, projectID)
}

// PendingQueue returns the chunks waiting for a worker
func (e *Engine) PendingQueue(ctx context.Context, projectID *int64, limit int) ([]jobs.Chunk, error) {
	chunks, err := e.oracle.PendingChunks(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	return chunks, nil
}

// Close releases the engine's cache
func (e *Engine) Close() {
	e.descriptors.Close()
}

func (e *Engine) annotate(ctx context.Context, projectID int64, held locks.JobSet, exists bool) (LockRecord, error) {
	record := LockRecord{
		ProjectID: projectID,
		Limit:     e.manager.Limit(),
		Jobs:      []HeldJob{},
	}

	switch {
	case !exists:
		record.Status = RecordUninitialized
		return record, nil
	case held.Len() == 0:
		record.Status = RecordUnlocked
		return record, nil
	default:
		record.Status = RecordLocked
	}

	for _, id := range locks.SortedIDs(held) {
		job, err := e.describe(ctx, id)
		if err != nil {
			return LockRecord{}, err
		}
		if job == nil {
			record.Jobs = append(record.Jobs, HeldJob{ID: id, Status: StatusUnknown, Stale: true})
			continue
		}
		record.Jobs = append(record.Jobs, HeldJob{
			ID:     id,
			Type:   job.Type,
			Status: job.Status,
			Stale:  !job.Status.IsIncomplete(),
		})
	}
	return record, nil
}

// describe returns the descriptor of a job, or nil when the job store does not
// know it
func (e *Engine) describe(ctx context.Context, jobID int64) (*jobs.Job, error) {
	if job, ok := e.descriptors.Get(jobID); ok {
		return job, nil
	}

	job, err := e.oracle.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to describe job %d: %w", jobID, err)
	}
	e.descriptors.Set(jobID, job)
	return job, nil
}
