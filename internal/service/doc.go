// Package service contains the application use cases: submitting text for
// relay, polling a task, and the read-only views of queue, limiter and health
// state used by the status endpoints.
//
// TaskService is the only entry point the HTTP layer needs. It validates
// input, applies callback defaults and allow-list rules, and hands tasks to
// the runner. It never blocks on provider work.
//
// Error handling:
//   - Invalid input is returned as *ValidationError, which matches ErrValidation
//   - task.ErrQueueSaturated and task.ErrTaskNotFound pass through unchanged
//   - Unexpected failures are wrapped in *TaskServiceError
package service
