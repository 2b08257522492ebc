package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store defines the interface for keeping task records.
type Store interface {
	// Create stores a new task. The task must be Queued and have an id.
	Create(ctx context.Context, task *Task) error

	// Get returns a copy of the task, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*Task, error)

	// UpdateStatus applies a status transition and returns a copy of the
	// updated task. Illegal transitions return ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Task, error)

	// RecordAttempt increments the provider attempt counter and returns the new value.
	RecordAttempt(ctx context.Context, id string) (int, error)

	// UpdateCallback replaces the callback delivery state. It never changes Status.
	UpdateCallback(ctx context.Context, id string, state CallbackState) error

	// Delete removes a task.
	Delete(ctx context.Context, id string) error

	// List returns copies of tasks, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Task, error)

	// Stats aggregates counts and timings across all stored tasks.
	Stats(ctx context.Context) (Stats, error)

	// EvictTerminalBefore removes terminal tasks that finished before cutoff
	// and returns how many were removed.
	EvictTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ListOptions filters List results.
type ListOptions struct {
	// Status restricts results to one status when non-empty
	Status Status
	// Limit caps the number of results when positive
	Limit int
}

// Stats is an aggregate view of the store.
type Stats struct {
	Total    int
	ByStatus map[Status]int
	// AverageProcessingTime is the mean time from admission to terminal
	// status over completed tasks.
	AverageProcessingTime time.Duration
	// SuccessRate is completed / (completed + failed), zero when nothing finished.
	SuccessRate float64
}

// entry guards a single task so that distinct tasks never contend.
type entry struct {
	mu   sync.Mutex
	task *Task
}

// MemoryStore is an in-process Store. The map is guarded by an RWMutex for
// membership changes; each record has its own mutex for field updates.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	if task.Status != StatusQueued {
		return fmt.Errorf("%w: new tasks must be %s, got %s", ErrInvalidTask, StatusQueued, task.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}
	s.entries[task.ID] = &entry{task: task.Clone()}
	return nil
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Task, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.task
	if !t.Status.CanTransitionTo(update.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, update.Status)
	}

	now := s.now()
	t.Status = update.Status
	t.UpdatedAt = now

	switch update.Status {
	case StatusProcessing:
		t.StartedAt = &now
	case StatusCompleted:
		t.Result = update.Result
		t.Error = ""
		t.FinishedAt = &now
	case StatusFailed:
		t.Error = update.Error
		t.Result = ""
		t.FinishedAt = &now
	}

	return t.Clone(), nil
}

// RecordAttempt implements Store.
func (s *MemoryStore) RecordAttempt(ctx context.Context, id string) (int, error) {
	e, err := s.lookup(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.task.Attempts++
	e.task.UpdatedAt = s.now()
	return e.task.Attempts, nil
}

// UpdateCallback implements Store.
func (s *MemoryStore) UpdateCallback(ctx context.Context, id string, state CallbackState) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state.DeliveredAt = copyTime(state.DeliveredAt)
	e.task.Callback = state
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

// snapshot copies every task while holding the map read lock.
func (s *MemoryStore) snapshot() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*Task, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		tasks = append(tasks, e.task.Clone())
		e.mu.Unlock()
	}
	return tasks
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	all := s.snapshot()

	out := all[:0]
	for _, t := range all {
		if opts.Status == "" || t.Status == opts.Status {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, st := range AllStatuses {
		stats.ByStatus[st] = 0
	}

	var total time.Duration
	var timed int
	for _, t := range s.snapshot() {
		stats.Total++
		stats.ByStatus[t.Status]++
		if t.Status == StatusCompleted {
			if d, ok := t.ProcessingTime(); ok {
				total += d
				timed++
			}
		}
	}

	if timed > 0 {
		stats.AverageProcessingTime = total / time.Duration(timed)
	}
	finished := stats.ByStatus[StatusCompleted] + stats.ByStatus[StatusFailed]
	if finished > 0 {
		stats.SuccessRate = float64(stats.ByStatus[StatusCompleted]) / float64(finished)
	}
	return stats, nil
}

// EvictTerminalBefore implements Store.
func (s *MemoryStore) EvictTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		e.mu.Lock()
		expired := e.task.Status.Terminal() && e.task.FinishedAt != nil && e.task.FinishedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
