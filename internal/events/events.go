package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the task runner, one per status transition.
const (
	TypeTaskQueued     = "task.queued"
	TypeTaskProcessing = "task.processing"
	TypeTaskCompleted  = "task.completed"
	TypeTaskFailed     = "task.failed"
)

// TaskEvent announces that a task changed status. It carries the task id
// only; handlers load the current record from the store.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// TaskID identifies the task whose status changed
	TaskID string `json:"task_id"`

	// Status is the status the task moved into
	Status string `json:"status"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a new TaskEvent with the specified type.
func NewTaskEvent(eventType, taskID, status string) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the event announces a final status.
func (e *TaskEvent) Terminal() bool {
	return e.Type == TypeTaskCompleted || e.Type == TypeTaskFailed
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the runner to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
