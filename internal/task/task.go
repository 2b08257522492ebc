package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is legal.
// Queued may go to Processing or straight to Failed (a task that could not be
// handed to a worker); Processing may go to either terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next.Terminal()
	default:
		return false
	}
}

// CallbackStatus tracks webhook delivery independently of the task status.
type CallbackStatus string

// Possible callback delivery states
const (
	CallbackNone      CallbackStatus = "none"
	CallbackPending   CallbackStatus = "pending"
	CallbackDelivered CallbackStatus = "delivered"
	CallbackFailed    CallbackStatus = "failed"
)

// CallbackState is the delivery bookkeeping for a task's webhook.
type CallbackState struct {
	Status      CallbackStatus
	Attempts    int
	LastError   string
	DeliveredAt *time.Time
}

// Task is a single unit of relayed work.
type Task struct {
	ID          string
	InputText   string
	CallbackURL string
	Status      Status
	Result      string
	Error       string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Callback    CallbackState
}

// New creates a queued task with a fresh UUIDv4 identifier. An empty
// callbackURL makes the task poll-only.
func New(text, callbackURL string) *Task {
	now := time.Now().UTC()
	callbackURL = strings.TrimSpace(callbackURL)

	t := &Task{
		ID:          uuid.NewString(),
		InputText:   text,
		CallbackURL: callbackURL,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
		Callback:    CallbackState{Status: CallbackNone},
	}
	if callbackURL != "" {
		t.Callback.Status = CallbackPending
	}
	return t
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.StartedAt = copyTime(t.StartedAt)
	c.FinishedAt = copyTime(t.FinishedAt)
	c.Callback.DeliveredAt = copyTime(t.Callback.DeliveredAt)
	return &c
}

// ProcessingTime returns how long the task spent between admission and its
// terminal status. The second value is false until both are known.
func (t *Task) ProcessingTime() (time.Duration, bool) {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0, false
	}
	return t.FinishedAt.Sub(*t.StartedAt), true
}

// HasCallback reports whether the task should be delivered to a webhook.
func (t *Task) HasCallback() bool {
	return t.CallbackURL != ""
}

// StatusUpdate describes a status transition. Result is used only for
// StatusCompleted and Error only for StatusFailed.
type StatusUpdate struct {
	Status Status
	Result string
	Error  string
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
