// Package maintenance runs background checkpoint and compaction jobs for the
// vector store on cron schedules.
package maintenance

import (
	"context"
	"time"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

// Task is one maintenance job.
type Task interface {
	// Name identifies the task in status output and RunTask.
	Name() string
	Description() string
	Execute(ctx context.Context) TaskResult
}

// TaskResult describes one execution.
type TaskResult struct {
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
}

// TaskStatus is the scheduler's view of a registered task.
type TaskStatus struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	Runs        int        `json:"runs"`
	LastResult  TaskResult `json:"last_result"`
}

// VectorStore is the part of the vector store the tasks need.
type VectorStore interface {
	Dirty() bool
	PersistAll() error
	MaybeCompact(ctx context.Context, threshold float64) (*vectorstore.CompactResult, bool, error)
}
