package api

import (
	"time"

	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/service"
	"github.com/phrazzld/relay-api/internal/task"
)

// SubmitTaskRequest defines the payload for POST /tasks.
type SubmitTaskRequest struct {
	Text        string `json:"text"         validate:"required"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

// SubmitTaskResponse is returned with 202 Accepted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// CallbackResponse reports webhook delivery for a task.
type CallbackResponse struct {
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// TaskResponse is the full view of a task.
type TaskResponse struct {
	TaskID           string            `json:"task_id"`
	Status           string            `json:"status"`
	Result           string            `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
	Attempts         int               `json:"attempts"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	ProcessingTimeMS *int64            `json:"processing_time_ms,omitempty"`
	Callback         *CallbackResponse `json:"callback,omitempty"`
}

// TaskSummary is a compact task view used in listings.
type TaskSummary struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status                string `json:"status"`
	WorkersAlive          int    `json:"workers_alive"`
	Workers               int    `json:"workers"`
	RateLimiterConfigured bool   `json:"rate_limiter_configured"`
	QueueDepth            int    `json:"queue_depth"`
	QueueCapacity         int    `json:"queue_capacity"`
}

// QueueStatusResponse is returned by GET /queue/status.
type QueueStatusResponse struct {
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	Counts        map[string]int `json:"counts"`
	Recent        []TaskSummary  `json:"recent"`
}

// RateLimitResponse is returned by GET /status/rate_limits.
type RateLimitResponse struct {
	Algorithm      string     `json:"algorithm"`
	LimitPerMinute int        `json:"limit_per_minute"`
	LimitPerHour   int        `json:"limit_per_hour,omitempty"`
	UsedLastMinute int        `json:"used_last_minute"`
	UsedLastHour   int        `json:"used_last_hour,omitempty"`
	Available      int        `json:"available"`
	NextSlotInMS   int64      `json:"next_slot_in_ms"`
	ThrottledUntil *time.Time `json:"throttled_until,omitempty"`
	TotalAdmitted  uint64     `json:"total_admitted"`
	TotalRefused   uint64     `json:"total_refused"`
}

// MetricsResponse is returned by GET /status/metrics.
type MetricsResponse struct {
	QueueLength           int     `json:"queue_length"`
	TotalTasks            int     `json:"total_tasks"`
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	SuccessRate           float64 `json:"success_rate"`
	CallbacksDelivered    int     `json:"callbacks_delivered"`
	CallbacksFailed       int     `json:"callbacks_failed"`
}

func taskToResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:      t.ID,
		Status:      string(t.Status),
		Result:      t.Result,
		Error:       t.Error,
		Attempts:    t.Attempts,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.FinishedAt,
	}
	if d, ok := t.ProcessingTime(); ok {
		ms := d.Milliseconds()
		resp.ProcessingTimeMS = &ms
	}
	if t.HasCallback() {
		resp.Callback = &CallbackResponse{
			URL:         t.CallbackURL,
			Status:      string(t.Callback.Status),
			Attempts:    t.Callback.Attempts,
			LastError:   t.Callback.LastError,
			DeliveredAt: t.Callback.DeliveredAt,
		}
	}
	return resp
}

func taskToSummary(t *task.Task) TaskSummary {
	return TaskSummary{
		TaskID:    t.ID,
		Status:    string(t.Status),
		Attempts:  t.Attempts,
		CreatedAt: t.CreatedAt,
	}
}

func healthToResponse(h service.HealthReport) HealthResponse {
	return HealthResponse{
		Status:                h.Status,
		WorkersAlive:          h.WorkersAlive,
		Workers:               h.Workers,
		RateLimiterConfigured: h.RateLimiterConfigured,
		QueueDepth:            h.QueueDepth,
		QueueCapacity:         h.QueueCapacity,
	}
}

func queueStatusToResponse(q *service.QueueStatus) QueueStatusResponse {
	resp := QueueStatusResponse{
		QueueDepth:    q.QueueDepth,
		QueueCapacity: q.QueueCapacity,
		Counts:        make(map[string]int, len(q.Counts)),
		Recent:        make([]TaskSummary, 0, len(q.Recent)),
	}
	for status, n := range q.Counts {
		resp.Counts[string(status)] = n
	}
	for _, t := range q.Recent {
		resp.Recent = append(resp.Recent, taskToSummary(t))
	}
	return resp
}

func snapshotToResponse(s ratelimit.Snapshot) RateLimitResponse {
	resp := RateLimitResponse{
		Algorithm:      s.Algorithm,
		LimitPerMinute: s.LimitPerMinute,
		LimitPerHour:   s.LimitPerHour,
		UsedLastMinute: s.UsedLastMinute,
		UsedLastHour:   s.UsedLastHour,
		Available:      s.Available,
		NextSlotInMS:   s.NextSlotIn.Milliseconds(),
		TotalAdmitted:  s.TotalAdmitted,
		TotalRefused:   s.TotalRefused,
	}
	if !s.ThrottledUntil.IsZero() {
		until := s.ThrottledUntil.UTC()
		resp.ThrottledUntil = &until
	}
	return resp
}

func metricsToResponse(m *service.Metrics) MetricsResponse {
	return MetricsResponse{
		QueueLength:           m.QueueLength,
		TotalTasks:            m.TotalTasks,
		AverageResponseTimeMS: float64(m.AverageProcessingTime.Microseconds()) / 1000,
		SuccessRate:           m.SuccessRate,
		CallbacksDelivered:    m.CallbacksDelivered,
		CallbacksFailed:       m.CallbacksFailed,
	}
}
