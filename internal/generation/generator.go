package generation

import "context"

// Generator defines the interface for relaying text to an external model.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
type Generator interface {
	// Generate sends text to the provider and returns the model output.
	//
	// Parameters:
	//   - ctx: Context for the operation, which bounds the provider call
	//   - text: The input text exactly as submitted
	//
	// Returns:
	//   - The generated text
	//   - An error if the call fails; adapters return *Error so callers can
	//     classify it with errors.Is against the sentinels in errors.go
	Generate(ctx context.Context, text string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, text string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
