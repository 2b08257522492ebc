package api

import (
	"net/http"

	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/service"
)

// StatusHandler serves health and operational status endpoints.
type StatusHandler struct {
	tasks TaskService
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(tasks TaskService) *StatusHandler {
	return &StatusHandler{tasks: tasks}
}

// Health handles GET /health. It answers 503 when the service is degraded so
// load balancers stop routing to it.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.tasks.Health(r.Context())

	status := http.StatusOK
	if report.Status != service.HealthOK {
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, healthToResponse(report))
}

// QueueStatus handles GET /queue/status?limit=N.
func (h *StatusHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryInt(r, "limit", service.DefaultRecentLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	q, err := h.tasks.QueueStatus(r.Context(), limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read queue status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, queueStatusToResponse(q))
}

// RateLimits handles GET /status/rate_limits.
func (h *StatusHandler) RateLimits(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.tasks.RateLimits()
	if !ok {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Rate limiter not configured")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, snapshotToResponse(snap))
}

// Metrics handles GET /status/metrics.
func (h *StatusHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.tasks.Metrics(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read metrics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, metricsToResponse(m))
}
