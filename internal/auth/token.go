// Package auth verifies the short-lived signed tokens that gate
// WebSocket connection admission.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ludoteca/ludoteca/internal/config"
)

// ErrInvalidToken is returned when a token is missing, malformed, expired,
// or fails signature verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal asserted by a connection token.
type Identity struct {
	// UserID is the stable user identifier.
	UserID string
	// DisplayName is the name shown to other room members.
	DisplayName string
}

// Verifier resolves a presented token to an Identity.
// The dispatcher depends on this interface, not on the JWT implementation.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type claims struct {
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-SHA256 signed connection tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService from auth configuration.
//
// Precondition: cfg.Secret must be non-empty; cfg.TokenTTL must be positive.
func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TokenTTL,
	}
}

// Issue creates a signed token asserting the given identity, valid for the
// configured TTL.
//
// Precondition: userID must be non-empty.
// Postcondition: Returns a compact JWS string or a non-nil error.
func (s *TokenService) Issue(userID, displayName string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the identity it asserts.
//
// Postcondition: Returns the Identity, or ErrInvalidToken for any
// malformed, expired, or improperly signed token.
func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      c.Subject,
		DisplayName: c.DisplayName,
	}, nil
}
