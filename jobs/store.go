// Package jobs defines the read-only view of batch job state that the
// locking layer reconciles against.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Common job store errors
var (
	ErrNotFound = errors.New("job not found")
)

// Status is the lifecycle state of a batch job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusPaused    Status = "PAUSED"
)

// IsIncomplete reports whether a job in this status may still hold a slot.
func (s Status) IsIncomplete() bool {
	return s == StatusPending || s == StatusRunning
}

// Job is the descriptor of a single batch job instance.
type Job struct {
	ID          int64     `json:"id"`
	ProjectID   *int64    `json:"project_id"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	Exclusive   bool      `json:"exclusive"` // Whether the job type competes for a project slot
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the compact view of an incomplete job returned by IncompleteJobs.
type Summary struct {
	JobID       int64  `json:"job_id"`
	Status      Status `json:"status"`
	TotalChunks int    `json:"total_chunks"`
}

// Chunk is one execution unit of a batch job waiting in the chunk queue.
type Chunk struct {
	ID        int64      `json:"id"`
	JobID     int64      `json:"job_id"`
	ProjectID *int64     `json:"project_id"`
	Index     int        `json:"index"`
	Locked    bool       `json:"locked"` // Dequeued by a worker
	LockedAt  *time.Time `json:"locked_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Oracle defines the read-only queries the locking layer needs from the job store
type Oracle interface {
	// GetJob returns the descriptor for a job, or ErrNotFound
	GetJob(ctx context.Context, jobID int64) (*Job, error)

	// GetStatuses returns the status of each known job; unknown ids are omitted
	GetStatuses(ctx context.Context, jobIDs []int64) (map[int64]Status, error)

	// IncompleteJobs returns the exclusive PENDING and RUNNING jobs of a project in id order
	IncompleteJobs(ctx context.Context, projectID int64) ([]Summary, error)

	// UnlockedChunkCounts returns how many chunks of each job have not been dequeued yet
	UnlockedChunkCounts(ctx context.Context, jobIDs []int64) (map[int64]int, error)

	// PendingChunks lists queued chunks, optionally restricted to one project
	PendingChunks(ctx context.Context, projectID *int64, limit int) ([]Chunk, error)

	// Close closes the underlying connection
	Close() error
}
