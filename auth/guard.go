// Package auth guards the HTTP API with a shared bearer token whose bcrypt
// hash is stored in configuration.
package auth

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken is returned when the token does not match the hash.
	ErrInvalidToken = errors.New("auth: invalid bearer token")
)

// HashToken returns the bcrypt hash to put in configuration for token.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", fmt.Errorf("auth: token must be at least 16 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}
	return string(h), nil
}

// TokenGuard checks bearer tokens against a bcrypt hash. Verified tokens are
// remembered by SHA-256 digest so bcrypt runs once per distinct token.
type TokenGuard struct {
	hash     []byte
	verified sync.Map // [32]byte -> struct{}
}

// NewTokenGuard creates a guard for hash. An empty hash yields nil: no guard.
func NewTokenGuard(hash string) (*TokenGuard, error) {
	if hash == "" {
		return nil, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: token hash: %w", err)
	}
	return &TokenGuard{hash: []byte(hash)}, nil
}

// Check validates the Authorization header of r.
func (g *TokenGuard) Check(r *http.Request) error {
	token, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return ErrMissingToken
	}
	key := sha256.Sum256([]byte(token))
	if _, hit := g.verified.Load(key); hit {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	g.verified.Store(key, struct{}{})
	return nil
}

// Middleware rejects requests without a valid token with 401 and a JSON
// body in the clone error shape. A nil guard lets everything through.
func (g *TokenGuard) Middleware(next http.Handler) http.Handler {
	if g == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Check(r); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="webcloner"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
