package callback

import (
	"context"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/task"
)

// EventHandler schedules webhook delivery when a task with a callback URL
// reaches a terminal status.
type EventHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(dispatcher *Dispatcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		logger:     logger.With("component", "callback_event_handler"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if !event.Terminal() {
		return nil
	}

	t, err := h.dispatcher.store.Get(ctx, event.TaskID)
	if err != nil {
		return err
	}
	if !t.HasCallback() || t.Callback.Status == task.CallbackDelivered {
		return nil
	}

	h.logger.DebugContext(ctx, "scheduling callback delivery",
		"task_id", event.TaskID,
		"status", event.Status)
	return h.dispatcher.Enqueue(event.TaskID)
}

var _ events.EventHandler = (*EventHandler)(nil)
