// Package auth verifies API keys presented as bearer tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// Key is a configured API key. Only the hash is kept.
type Key struct {
	KeyHash     string
	UserID      string
	Description string
}

// Authenticator validates API keys and resolves the identity they belong to.
type Authenticator struct {
	keys map[string]Key // keyhash -> key
	now  func() time.Time
}

// NewAuthenticator creates an authenticator for the given keys.
func NewAuthenticator(keys []Key) *Authenticator {
	a := &Authenticator{
		keys: make(map[string]Key, len(keys)),
		now:  time.Now,
	}
	for _, k := range keys {
		a.keys[k.KeyHash] = k
	}
	return a
}

// Len returns the number of configured keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// ValidateAPIKey validates an API key and returns its configuration.
func (a *Authenticator) ValidateAPIKey(apiKey string) (Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return Key{}, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.KeyHash)) != 1 {
		return Key{}, fmt.Errorf("invalid API key")
	}
	return k, nil
}

// Verify implements pipeline.Verifier. Unknown keys yield no identity.
func (a *Authenticator) Verify(_ context.Context, token string) (*domain.Identity, error) {
	k, err := a.ValidateAPIKey(token)
	if err != nil {
		return nil, nil
	}

	userID := k.UserID
	if userID == "" {
		userID = "key_" + k.KeyHash[:min(12, len(k.KeyHash))]
	}
	id := &domain.Identity{
		Token:           token,
		UserID:          userID,
		AuthenticatedAt: a.now(),
	}
	if k.Description != "" {
		id.Attributes = map[string]any{"key_description": k.Description}
	}
	return id, nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
