package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/phrazzld/relay-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateFn allows test cases to mock the Generate behavior
	GenerateFn func(ctx context.Context, text string) (string, error)

	// Default response values
	Result string
	Err    error

	// Call tracking for verification
	GenerateCalls struct {
		// mu protects the call tracking state for concurrent test cases
		mu sync.Mutex

		// Count tracks how many times Generate was called
		Count int

		// Texts contains all texts passed to Generate calls
		Texts []string
	}
}

// Generate implements the generation.Generator interface
func (m *MockGenerator) Generate(ctx context.Context, text string) (string, error) {
	// Track call details for verification
	m.GenerateCalls.mu.Lock()
	m.GenerateCalls.Count++
	m.GenerateCalls.Texts = append(m.GenerateCalls.Texts, text)
	m.GenerateCalls.mu.Unlock()

	// Use custom function if provided
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, text)
	}

	// Return default values
	return m.Result, m.Err
}

// CallCount returns how many times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.GenerateCalls.mu.Lock()
	defer m.GenerateCalls.mu.Unlock()
	return m.GenerateCalls.Count
}

// NewMockGeneratorWithResult creates a MockGenerator that returns the specified result
func NewMockGeneratorWithResult(result string) *MockGenerator {
	return &MockGenerator{
		Result: result,
	}
}

// NewMockGeneratorWithError creates a MockGenerator that returns the specified error
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{
		Err: err,
	}
}

// NewMockGeneratorFailingThen creates a MockGenerator whose first failures
// calls return err and every later call returns result.
func NewMockGeneratorFailingThen(failures int, err error, result string) *MockGenerator {
	m := &MockGenerator{}
	var mu sync.Mutex
	calls := 0
	m.GenerateFn = func(ctx context.Context, text string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= failures {
			return "", err
		}
		return result, nil
	}
	return m
}

// TransientError returns a classified transient network failure.
func TransientError() error {
	return generation.NewError("mock", generation.KindTransientNetwork, errors.New("connection reset"))
}

// RateLimitedError returns a classified rate limit failure without a Retry-After hint.
func RateLimitedError() error {
	return generation.NewError("mock", generation.KindRateLimited, errors.New("too many requests"))
}

// AuthenticationError returns a classified, non-transient authentication failure.
func AuthenticationError() error {
	return generation.NewError("mock", generation.KindAuthentication, errors.New("invalid api key"))
}

// Reset resets the call tracking state
func (m *MockGenerator) Reset() {
	m.GenerateCalls.mu.Lock()
	defer m.GenerateCalls.mu.Unlock()

	m.GenerateCalls.Count = 0
	m.GenerateCalls.Texts = nil
}

var _ generation.Generator = (*MockGenerator)(nil)
