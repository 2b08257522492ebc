package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AdminSubject is the subject reported for API key callers.
const AdminSubject = "admin"

// APIKeyAuthenticator accepts a static admin key, given either in plaintext
// or as a bcrypt hash.
type APIKeyAuthenticator struct {
	key  []byte
	hash []byte
}

// NewAPIKeyAuthenticator creates an authenticator for key and/or hash. At
// least one must be non-empty; a malformed hash is rejected up front.
func NewAPIKeyAuthenticator(key, hash string) (*APIKeyAuthenticator, error) {
	if key == "" && hash == "" {
		return nil, ErrNoAuthenticators
	}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid admin key hash: %w", err)
		}
	}
	return &APIKeyAuthenticator{key: []byte(key), hash: []byte(hash)}, nil
}

// Authenticate implements Authenticator.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	if len(a.key) > 0 && subtle.ConstantTimeCompare(a.key, []byte(credential)) == 1 {
		return &Principal{Subject: AdminSubject, Method: MethodAPIKey}, nil
	}

	if len(a.hash) > 0 {
		err := bcrypt.CompareHashAndPassword(a.hash, []byte(credential))
		if err == nil {
			return &Principal{Subject: AdminSubject, Method: MethodAPIKey}, nil
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, fmt.Errorf("failed to compare admin key: %w", err)
		}
	}

	return nil, ErrInvalidCredential
}

// HashAPIKey returns a bcrypt hash of key suitable for auth.admin_api_key_hash.
func HashAPIKey(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrMissingCredential
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
