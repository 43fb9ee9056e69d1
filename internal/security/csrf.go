package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager handles CSRF token generation for gateway cookies.
// Tokens are cryptographically random; the browser-context middleware
// pairs them with the context cookie and checks the header echo on
// state-changing requests.
type TokenManager struct{}

// NewTokenManager creates a new CSRF token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate creates a cryptographically secure random CSRF token
// returned as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares the header echo against the cookie value in constant
// time.
func (tm *TokenManager) Verify(cookieToken, headerToken string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
