package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/relay-api/internal/platform/logger"
)

// RoleAdmin is the role claim required on admin tokens.
const RoleAdmin = "admin"

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32

// adminClaims defines the structure of JWT claims we use
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 admin tokens and can mint them.
type JWTAuthenticator struct {
	signingKey []byte
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration    // Allowed time difference for validation to handle clock drift
}

// NewJWTAuthenticator creates a JWT authenticator using HMAC-SHA256 signing.
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	return &JWTAuthenticator{
		signingKey: []byte(secret),
		timeFunc:   time.Now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// Issue creates a signed admin token for subject valid for lifetime.
func (a *JWTAuthenticator) Issue(ctx context.Context, subject string, lifetime time.Duration) (string, error) {
	log := logger.FromContext(ctx)
	if subject == "" {
		subject = AdminSubject
	}
	if lifetime <= 0 {
		return "", errors.New("token lifetime must be positive")
	}

	now := a.timeFunc()
	claims := adminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		log.Error("failed to sign admin token",
			"error", err,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("failed to sign admin token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}

// Authenticate implements Authenticator. A credential that is not a JWT at
// all reports ErrInvalidCredential so AnyOf can fall back to other methods.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	log := logger.FromContext(ctx)
	if credential == "" {
		return nil, ErrMissingCredential
	}

	now := a.timeFunc()
	token, err := jwt.ParseWithClaims(
		credential,
		&adminClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrInvalidCredential
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("admin token validation failed: token expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("admin token validation failed: token not yet valid")
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("admin token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin {
		log.Debug("admin token validation failed: wrong role", "role", claims.Role)
		return nil, ErrInsufficientRole
	}

	p := &Principal{Subject: claims.Subject, Method: MethodJWT}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
