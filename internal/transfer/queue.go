package transfer

import (
	"sync"
	"time"

	"github.com/scenefetch/scenefetch/internal/events"
)

// QueueStats holds statistics about the transfer queue.
type QueueStats struct {
	Queued    int
	Active    int
	Retrying  int
	Completed int
	Failed    int
	Bytes     int64
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Active + s.Retrying + s.Completed + s.Failed
}

// Queue is a passive fetch tracker that publishes events for progress output.
//
//   - Fetch workers register tasks via Track()
//   - Start() when an attempt holds an admission slot
//   - Retry() when an attempt failed and another will follow
//   - Complete()/Fail() when the task reaches a terminal state
type Queue struct {
	tasks     []*Task
	tasksByID map[string]*Task
	mu        sync.RWMutex

	eventBus *events.EventBus
}

// NewQueue creates a queue. eventBus may be nil.
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasksByID: make(map[string]*Task),
		eventBus:  eventBus,
	}
}

// Track registers a new fetch of url in the queued state.
func (q *Queue) Track(url string) *Task {
	task := NewTask(url)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[task.ID] = task
	q.mu.Unlock()

	q.publish(events.EventTransferQueued, task)
	return task
}

// Start marks the beginning of an attempt.
func (q *Queue) Start(taskID string, attempt int) {
	task := q.update(taskID, func(t *Task) {
		if t.State == TaskCompleted || t.State == TaskFailed {
			return
		}
		t.State = TaskActive
		t.Attempts = attempt
		if t.StartedAt.IsZero() {
			t.StartedAt = time.Now()
		}
	})
	q.publish(events.EventTransferStarted, task)
}

// SetFile records the server-provided name and the expected size.
func (q *Queue) SetFile(taskID, name string, size int64) {
	q.update(taskID, func(t *Task) {
		t.Name = name
		t.Size = size
	})
}

// Retry marks a failed attempt that will be retried.
func (q *Queue) Retry(taskID string, err error) {
	task := q.update(taskID, func(t *Task) {
		if t.State == TaskCompleted || t.State == TaskFailed {
			return
		}
		t.State = TaskRetrying
		t.Error = err
	})
	q.publish(events.EventTransferRetrying, task)
}

// Complete marks a task as persisted at path.
func (q *Queue) Complete(taskID, path string) {
	task := q.update(taskID, func(t *Task) {
		t.State = TaskCompleted
		t.Path = path
		t.Error = nil
		t.CompletedAt = time.Now()
	})
	q.publish(events.EventTransferCompleted, task)
}

// Fail marks a task as failed for good.
func (q *Queue) Fail(taskID string, err error) {
	task := q.update(taskID, func(t *Task) {
		t.State = TaskFailed
		t.Error = err
		t.CompletedAt = time.Now()
	})
	q.publish(events.EventTransferFailed, task)
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats QueueStats
	for _, task := range q.tasks {
		task.mu.RLock()
		switch task.State {
		case TaskQueued:
			stats.Queued++
		case TaskActive:
			stats.Active++
		case TaskRetrying:
			stats.Retrying++
		case TaskCompleted:
			stats.Completed++
			stats.Bytes += task.Size
		case TaskFailed:
			stats.Failed++
		}
		task.mu.RUnlock()
	}
	return stats
}

// GetTasks returns copies of all tasks in creation order.
func (q *Queue) GetTasks() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, task.Clone())
	}
	return out
}

// GetTask returns a copy of a task by ID.
func (q *Queue) GetTask(taskID string) (Task, bool) {
	q.mu.RLock()
	task, ok := q.tasksByID[taskID]
	q.mu.RUnlock()
	if !ok {
		return Task{}, false
	}
	return task.Clone(), true
}

// update applies fn to the task under its lock and returns it (nil if unknown).
func (q *Queue) update(taskID string, fn func(t *Task)) *Task {
	q.mu.RLock()
	task, ok := q.tasksByID[taskID]
	q.mu.RUnlock()
	if !ok {
		return nil
	}

	task.mu.Lock()
	fn(task)
	task.mu.Unlock()
	return task
}

func (q *Queue) publish(eventType events.EventType, task *Task) {
	if q.eventBus == nil || task == nil {
		return
	}
	snap := task.Clone()
	q.eventBus.Publish(&events.TransferEvent{
		BaseEvent: events.BaseEvent{EventType: eventType, Time: time.Now()},
		TaskID:    snap.ID,
		URL:       snap.URL,
		Name:      snap.Name,
		Attempt:   snap.Attempts,
		Error:     snap.Error,
	})
}
