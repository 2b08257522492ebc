package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/relay-api/internal/service"
)

// getPathTaskID extracts a task ID from the URL path. IDs are opaque; an
// unknown ID is reported by the store as not found.
func getPathTaskID(r *http.Request, paramName string) (string, error) {
	id := chi.URLParam(r, paramName)
	if id == "" {
		return "", service.NewValidationError(paramName, "is required", nil)
	}
	return id, nil
}

// getQueryInt reads a non-negative integer query parameter. A missing
// parameter yields fallback.
func getQueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, service.NewValidationError(name, "must be a non-negative integer", nil)
	}
	return n, nil
}
