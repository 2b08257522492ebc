package auth

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/relay-api/internal/config"
)

// Authentication methods reported on a Principal.
const (
	MethodAPIKey = "api_key"
	MethodJWT    = "jwt"
)

// Principal is an authenticated caller.
type Principal struct {
	// Subject identifies the caller; "admin" for API keys, the sub claim for tokens
	Subject string

	// Method is MethodAPIKey or MethodJWT
	Method string

	// ExpiresAt is set for token credentials
	ExpiresAt time.Time
}

// Authenticator verifies a presented credential.
type Authenticator interface {
	// Authenticate returns the caller for credential, or an error wrapping one
	// of the sentinel errors in this package.
	Authenticate(ctx context.Context, credential string) (*Principal, error)
}

// anyOf accepts a credential if any of its authenticators accepts it.
type anyOf []Authenticator

// AnyOf combines authenticators. The first success wins; if all fail the
// most specific error is returned, preferring token errors over a plain
// mismatch.
func AnyOf(authenticators ...Authenticator) Authenticator {
	return anyOf(authenticators)
}

func (a anyOf) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}
	if len(a) == 0 {
		return nil, ErrNoAuthenticators
	}

	var lastErr error = ErrInvalidCredential
	for _, authenticator := range a {
		p, err := authenticator.Authenticate(ctx, credential)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrInvalidCredential) {
			lastErr = err
		}
	}
	return nil, lastErr
}

// NewFromConfig builds the admin authenticator from configuration. Every
// configured credential is accepted.
func NewFromConfig(cfg config.AuthConfig) (Authenticator, error) {
	var authenticators []Authenticator

	if cfg.AdminAPIKey != "" || cfg.AdminAPIKeyHash != "" {
		keyAuth, err := NewAPIKeyAuthenticator(cfg.AdminAPIKey, cfg.AdminAPIKeyHash)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, keyAuth)
	}

	if cfg.AdminJWTSecret != "" {
		jwtAuth, err := NewJWTAuthenticator(cfg.AdminJWTSecret)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, jwtAuth)
	}

	if len(authenticators) == 0 {
		return nil, ErrNoAuthenticators
	}
	return AnyOf(authenticators...), nil
}
