package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/service"
	"github.com/phrazzld/relay-api/internal/task"
)

// TaskService is the part of service.TaskService used by the HTTP layer.
type TaskService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*task.Task, error)
	Status(ctx context.Context, id string) (*task.Task, error)
	Health(ctx context.Context) service.HealthReport
	QueueStatus(ctx context.Context, limit int) (*service.QueueStatus, error)
	Metrics(ctx context.Context) (*service.Metrics, error)
	RateLimits() (ratelimit.Snapshot, bool)
}

var _ TaskService = (*service.TaskService)(nil)

// TaskHandler handles task submission and status requests.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Submit handles POST /tasks. The task is processed in the background, so a
// successful submission answers 202 Accepted immediately.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
			return
		}
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.tasks.Submit(r.Context(), service.SubmitInput{
		Text:        req.Text,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	logger.FromContext(r.Context()).DebugContext(r.Context(), "task submitted", "task_id", t.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: t.ID,
		Status: string(t.Status),
	})
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}
