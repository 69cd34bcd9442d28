package locks

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/jobs"
	"github.com/ebogdum/jobgate/metrics"
)

// Options tunes the admission policy of a Manager
type Options struct {
	// MaxConcurrentJobsPerProject caps the number of exclusive jobs running per project
	MaxConcurrentJobsPerProject int

	// FailOpen admits jobs when the lock store cannot complete a compute
	FailOpen bool
}

// Manager decides whether exclusive jobs may start and tracks which jobs hold
// a project's concurrency slots.
type Manager struct {
	store    Store
	oracle   jobs.Oracle
	limit    int
	failOpen bool
	logger   *zap.Logger
}

// admission captures the outcome of the compute invocation that committed.
type admission struct {
	admitted      bool
	cleaned       int
	reconstructed bool
}

// NewManager creates a locking manager on top of a lock store and a job oracle
func NewManager(store Store, oracle jobs.Oracle, opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.MaxConcurrentJobsPerProject < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidJobLimit, opts.MaxConcurrentJobsPerProject)
	}
	return &Manager{
		store:    store,
		oracle:   oracle,
		limit:    opts.MaxConcurrentJobsPerProject,
		failOpen: opts.FailOpen,
		logger:   logger,
	}, nil
}

// Limit returns the configured number of slots per project
func (m *Manager) Limit() int {
	return m.limit
}

// CanLockJob reports whether a job may start. Non-exclusive jobs are always
// admitted without touching lock state. A rejection is backpressure: the
// caller is expected to retry later.
func (m *Manager) CanLockJob(ctx context.Context, jobID int64) (bool, error) {
	job, err := m.oracle.GetJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve job %d: %w", jobID, err)
	}
	if !job.Exclusive {
		return true, nil
	}
	if job.ProjectID == nil {
		return false, fmt.Errorf("%w: job %d", ErrIllegalState, jobID)
	}
	return m.admit(ctx, *job.ProjectID, jobID)
}

func (m *Manager) admit(ctx context.Context, projectID, jobID int64) (bool, error) {
	var outcome admission
	var decideErr error
	_, err := m.store.Compute(ctx, projectID, func(current JobSet, exists bool) (JobSet, bool, error) {
		outcome = admission{}
		next, changed, err := m.decide(ctx, projectID, jobID, current, exists, &outcome)
		decideErr = err
		return next, changed, err
	})

	project := strconv.FormatInt(projectID, 10)
	if err != nil {
		if decideErr != nil && errors.Is(err, decideErr) {
			return false, fmt.Errorf("failed to admit job %d for project %d: %w", jobID, projectID, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		metrics.StoreErrorsTotal.WithLabelValues("admit").Inc()
		if !m.failOpen {
			return false, fmt.Errorf("failed to admit job %d for project %d: %w", jobID, projectID, err)
		}
		m.logger.Warn("Lock store unavailable, admitting job without holding a slot",
			zap.Int64("project_id", projectID),
			zap.Int64("job_id", jobID),
			zap.Error(err))
		return true, nil
	}

	if outcome.cleaned > 0 {
		metrics.LockCleanupTotal.WithLabelValues(project).Add(float64(outcome.cleaned))
	}
	if outcome.admitted {
		metrics.LockAcquiredTotal.WithLabelValues(project).Inc()
	} else {
		metrics.LockRejectedTotal.WithLabelValues(project).Inc()
	}

	m.logger.Debug("Admission decided",
		zap.Int64("project_id", projectID),
		zap.Int64("job_id", jobID),
		zap.Bool("admitted", outcome.admitted),
		zap.Int("cleaned", outcome.cleaned),
		zap.Bool("reconstructed", outcome.reconstructed))

	return outcome.admitted, nil
}

// decide is the body of the admission compute. It must stay free of external
// side effects since the store may run it more than once.
func (m *Manager) decide(ctx context.Context, projectID, jobID int64, current JobSet, exists bool, out *admission) (JobSet, bool, error) {
	if current.Has(jobID) {
		out.admitted = true
		return current, false, nil
	}

	held, dropped, err := m.reconcile(ctx, projectID, current)
	if err != nil {
		return nil, false, err
	}
	out.cleaned = dropped

	if held.Len() < m.limit {
		held.Insert(jobID)
		out.admitted = true
		return held, true, nil
	}

	if !exists {
		baseline, err := m.reconstruct(ctx, projectID)
		if err != nil {
			return nil, false, err
		}
		out.reconstructed = true
		if baseline.Has(jobID) || baseline.Len() < m.limit {
			baseline.Insert(jobID)
			out.admitted = true
		}
		return baseline, true, nil
	}
	return held, dropped > 0, nil
}

// reconcile drops every held job that is no longer pending or running.
// Jobs the oracle does not know anymore are dropped as well.
func (m *Manager) reconcile(ctx context.Context, projectID int64, held JobSet) (JobSet, int, error) {
	if held.Len() == 0 {
		return held, 0, nil
	}

	ids := SortedIDs(held)
	statuses, err := m.oracle.GetStatuses(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load status of held jobs: %w", err)
	}

	dropped := 0
	for _, id := range ids {
		status, known := statuses[id]
		if known && status.IsIncomplete() {
			continue
		}
		held.Delete(id)
		dropped++
		m.logger.Info("Dropping stale job from project lock",
			zap.Int64("project_id", projectID),
			zap.Int64("job_id", id),
			zap.String("status", string(status)))
	}
	return held, dropped, nil
}

// reconstruct rebuilds the slots of a project that has no lock record yet and
// whose reconciled set leaves no room. Running jobs come first; pending jobs only count once at least one of their
// chunks was dequeued.
func (m *Manager) reconstruct(ctx context.Context, projectID int64) (JobSet, error) {
	summaries, err := m.oracle.IncompleteJobs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load incomplete jobs of project %d: %w", projectID, err)
	}

	baseline := NewJobSet()
	var pending []jobs.Summary
	for _, s := range summaries {
		switch s.Status {
		case jobs.StatusRunning:
			if baseline.Len() < m.limit {
				baseline.Insert(s.JobID)
			}
		case jobs.StatusPending:
			pending = append(pending, s)
		}
	}

	if baseline.Len() < m.limit && len(pending) > 0 {
		ids := make([]int64, 0, len(pending))
		for _, s := range pending {
			ids = append(ids, s.JobID)
		}
		unlocked, err := m.oracle.UnlockedChunkCounts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to count unlocked chunks of project %d: %w", projectID, err)
		}
		for _, s := range pending {
			if baseline.Len() >= m.limit {
				break
			}
			if unlocked[s.JobID] < s.TotalChunks {
				baseline.Insert(s.JobID)
			}
		}
	}

	m.logger.Info("Initialized project lock from job store",
		zap.Int64("project_id", projectID),
		zap.Int64s("jobs", SortedIDs(baseline)))
	return baseline, nil
}

// UnlockJob releases the slot held by a job. Releasing a job that holds no
// slot is a no-op.
func (m *Manager) UnlockJob(ctx context.Context, projectID, jobID int64) error {
	released := false
	_, err := m.store.Compute(ctx, projectID, func(current JobSet, exists bool) (JobSet, bool, error) {
		released = false
		if !current.Has(jobID) {
			return current, false, nil
		}
		current.Delete(jobID)
		released = true
		return current, true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to release job %d for project %d: %w", jobID, projectID, err)
	}

	if released {
		metrics.LockReleasedTotal.WithLabelValues(strconv.FormatInt(projectID, 10)).Inc()
		m.logger.Debug("Released project slot",
			zap.Int64("project_id", projectID),
			zap.Int64("job_id", jobID))
	}
	return nil
}

// LockedJobs returns the jobs holding a slot of a project
func (m *Manager) LockedJobs(ctx context.Context, projectID int64) (JobSet, error) {
	held, _, err := m.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return held, nil
}

// Record returns the lock record of a project and whether it was initialized
func (m *Manager) Record(ctx context.Context, projectID int64) (JobSet, bool, error) {
	return m.store.Get(ctx, projectID)
}

// Snapshot returns every initialized lock record
func (m *Manager) Snapshot(ctx context.Context) (map[int64]JobSet, error) {
	return m.store.Snapshot(ctx)
}

// LockedJobIDs returns every job holding a slot in any project
func (m *Manager) LockedJobIDs(ctx context.Context) (JobSet, error) {
	snapshot, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	all := NewJobSet()
	for _, held := range snapshot {
		all = all.Union(held)
	}
	return all, nil
}

// ClearProject forces the record of a project to the empty set
func (m *Manager) ClearProject(ctx context.Context, projectID int64) error {
	if err := m.store.Put(ctx, projectID, NewJobSet()); err != nil {
		return err
	}
	m.logger.Info("Cleared project lock", zap.Int64("project_id", projectID))
	return nil
}

// RemoveProject deletes the record of a project so that the next admission
// rebuilds it from the job store
func (m *Manager) RemoveProject(ctx context.Context, projectID int64) error {
	if err := m.store.Delete(ctx, projectID); err != nil {
		return err
	}
	m.logger.Info("Removed project lock", zap.Int64("project_id", projectID))
	return nil
}
