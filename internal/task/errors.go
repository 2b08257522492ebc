package task

import "errors"

// Common errors returned by the task package
var (
	// ErrTaskNotFound is returned when no task exists for the given id
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task whose id is already stored
	ErrTaskExists = errors.New("task already exists")

	// ErrInvalidTransition is returned when a status update would move a task backwards
	// or out of a terminal state
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrInvalidTask is returned when a task is missing required fields
	ErrInvalidTask = errors.New("invalid task")

	// ErrQueueSaturated is returned when the queue already holds its maximum depth
	ErrQueueSaturated = errors.New("task queue is full")

	// ErrQueueClosed is returned when pushing onto a closed queue
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrRunnerStopped is returned when submitting to a runner that is shutting down
	ErrRunnerStopped = errors.New("task runner is stopped")
)
