package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys
type APIKeyAuthenticator struct {
	keys [][]byte
}

// NewAPIKeyAuthenticator creates a new API key authenticator. Empty keys are ignored.
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	validKeys := make([][]byte, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys = append(validKeys, []byte(key))
		}
	}
	return &APIKeyAuthenticator{keys: validKeys}
}

// Authenticate validates a token and returns a stable client ID derived from
// the key, so logs and rate limits can tell clients apart without exposing it.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", ErrAuthenticationFailed
	}

	candidate := []byte(token)
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare(candidate, key) == 1 {
			return clientID(key), nil
		}
	}
	return "", ErrAuthenticationFailed
}

func clientID(key []byte) string {
	sum := sha256.Sum256(key)
	return "key-" + hex.EncodeToString(sum[:4])
}
