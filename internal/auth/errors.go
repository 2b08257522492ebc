package auth

import "errors"

// Common authentication errors
var (
	// ErrMissingCredential indicates a credential was expected but not provided
	ErrMissingCredential = errors.New("authentication credential is missing")

	// ErrInvalidCredential indicates the credential did not match any configured one
	ErrInvalidCredential = errors.New("invalid authentication credential")

	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrInsufficientRole indicates a valid token without the admin role
	ErrInsufficientRole = errors.New("token does not grant admin access")

	// ErrNoAuthenticators indicates no admin credential is configured
	ErrNoAuthenticators = errors.New("no admin credential configured")
)
