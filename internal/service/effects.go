package service

import (
	"context"
	"time"
)

// Effect is a side effect produced by a mutation. Effects are delivered
// after the mutation has been committed; a failed delivery never undoes
// it.
type Effect interface {
	Kind() string
}

// RecurringTaskCompleted tells the job processor that a recurring task
// moved into a complete status and its next occurrence is due.
type RecurringTaskCompleted struct {
	TaskID      int64     `json:"task_id"`
	BoardID     int64     `json:"board_id"`
	Status      string    `json:"status"`
	Recurrence  string    `json:"recurrence"`
	CompletedBy int64     `json:"completed_by"`
	At          time.Time `json:"at"`
}

func (RecurringTaskCompleted) Kind() string { return "task.recurring_completed" }

// ActivityEntry is a human-readable audit line.
type ActivityEntry struct {
	UserID  int64     `json:"user_id"`
	BoardID int64     `json:"board_id"`
	TaskID  *int64    `json:"task_id,omitempty"`
	Action  string    `json:"action"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (ActivityEntry) Kind() string { return "activity" }

// TaskChanged announces a task mutation to live board subscribers.
type TaskChanged struct {
	Type    string `json:"type"`
	BoardID int64  `json:"board_id"`
	TaskID  int64  `json:"task_id"`
	// Assignees of the task, used to route the event to assigned-only
	// subscribers.
	Assignees []int64 `json:"assignees,omitempty"`
	Payload   any     `json:"payload,omitempty"`
}

func (TaskChanged) Kind() string { return "event" }

// Dispatcher delivers effects. Implementations log their own failures;
// Dispatch never reports an error to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, effects []Effect)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, effects []Effect)

func (f DispatcherFunc) Dispatch(ctx context.Context, effects []Effect) { f(ctx, effects) }
