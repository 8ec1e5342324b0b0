// Package transfer tracks the state of individual product fetches.
// Tasks are observed, not executed: fetch workers report state changes and
// the queue keeps the record for progress output and the batch summary.
package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Dispatched, waiting for an admission slot
	TaskActive    TaskState = "active"    // Holding a slot, bytes moving
	TaskRetrying  TaskState = "retrying"  // Last attempt failed, backing off
	TaskCompleted TaskState = "completed" // File persisted
	TaskFailed    TaskState = "failed"    // Attempts exhausted or cancelled
)

// Task is one fetch of one resolved download URL.
// Thread-safe: Use the provided methods to update state.
type Task struct {
	ID  string
	URL string

	Name     string // filename from Content-Disposition, once known
	Path     string // local path after persist
	Size     int64
	State    TaskState
	Attempts int
	Error    error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	mu sync.RWMutex
}

// NewTask creates a queued task for url.
func NewTask(url string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		URL:       url,
		State:     TaskQueued,
		CreatedAt: time.Now(),
	}
}

// GetState returns the current state (thread-safe).
func (t *Task) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// IsTerminal returns true if the task is completed or failed.
func (t *Task) IsTerminal() bool {
	state := t.GetState()
	return state == TaskCompleted || state == TaskFailed
}

// Clone returns a copy of the task for safe external use.
func (t *Task) Clone() Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Task{
		ID:          t.ID,
		URL:         t.URL,
		Name:        t.Name,
		Path:        t.Path,
		Size:        t.Size,
		State:       t.State,
		Attempts:    t.Attempts,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// Duration returns the time from first start to completion, or zero while running.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
