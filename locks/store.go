// Package locks implements per-project admission control for exclusive batch
// jobs. A project's lock record is the set of job ids currently holding one of
// its concurrency slots; every mutation of a record goes through Store.Compute.
package locks

import (
	"context"
	"errors"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Common lock errors
var (
	ErrIllegalState    = errors.New("exclusive job has no project")
	ErrComputeConflict = errors.New("lock record kept changing under concurrent writers")
	ErrInvalidRecord   = errors.New("lock record is not in the current format")
	ErrUnknownBackend  = errors.New("unknown lock store backend")
	ErrInvalidJobLimit = errors.New("max concurrent jobs per project must be positive")
)

// JobSet is the set of job ids held by one project.
type JobSet = sets.Set[int64]

// NewJobSet returns a set holding the given job ids.
func NewJobSet(ids ...int64) JobSet {
	return sets.New[int64](ids...)
}

// SortedIDs returns the members of s in ascending order.
func SortedIDs(s JobSet) []int64 {
	return sets.List(s)
}

// ComputeFunc derives the next value of a lock record from its current value.
// current is a private copy that may be modified and returned. exists is false
// when the project has never been initialized. When changed is false nothing
// is written. The function may be invoked more than once per Compute call and
// must not have external side effects.
type ComputeFunc func(current JobSet, exists bool) (next JobSet, changed bool, err error)

// Store defines the keyed lock record storage shared by all replicas
type Store interface {
	// Compute atomically replaces the record of a project with the result of fn
	// and returns the value that is stored afterwards
	Compute(ctx context.Context, projectID int64, fn ComputeFunc) (JobSet, error)

	// Get returns the record of a project and whether it has been initialized
	Get(ctx context.Context, projectID int64) (JobSet, bool, error)

	// Snapshot returns every initialized record
	Snapshot(ctx context.Context) (map[int64]JobSet, error)

	// Put overwrites the record of a project
	Put(ctx context.Context, projectID int64, jobs JobSet) error

	// Delete removes the record of a project, returning it to the uninitialized state
	Delete(ctx context.Context, projectID int64) error

	// Close releases any resources held by the store
	Close() error
}
