package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/auth"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/redact"
)

// AdminKeyHeader carries a raw admin API key.
const AdminKeyHeader = "X-Admin-API-Key"

// AuthMiddleware restricts routes to authenticated admins.
type AuthMiddleware struct {
	authenticator auth.Authenticator
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(authenticator auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// credential extracts the admin credential from the X-Admin-API-Key header
// or a Bearer Authorization header, in that order.
func credential(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(AdminKeyHeader)); key != "" {
		return key, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingCredential
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", auth.ErrInvalidCredential
	}
	return strings.TrimSpace(token), nil
}

// Authenticate admits requests carrying a valid admin credential and stores
// the resulting principal in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := credential(r)
		if err != nil {
			msg := "Invalid authorization format"
			if errors.Is(err, auth.ErrMissingCredential) {
				msg = "Admin credential required"
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, msg, err)
			return
		}

		principal, err := m.authenticator.Authenticate(r.Context(), cred)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Token expired", err)
			case errors.Is(err, auth.ErrInsufficientRole):
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Admin role required", err,
					shared.WithElevatedLogLevel())
			case errors.Is(err, auth.ErrInvalidCredential),
				errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid admin credential", err,
					shared.WithElevatedLogLevel())
			default:
				logger.FromContext(r.Context()).Error("failed to authenticate admin", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
