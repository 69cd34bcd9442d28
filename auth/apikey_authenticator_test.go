package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAPIKeyAuthenticator(t *testing.T) {
	authenticator := NewAPIKeyAuthenticator([]string{"alpha", "", "beta"})
	ctx := context.Background()

	tests := []struct {
		name        string
		token       string
		shouldError bool
	}{
		{name: "plain key", token: "alpha"},
		{name: "bearer key", token: "Bearer beta"},
		{name: "padded key", token: "Bearer  alpha "},
		{name: "unknown key", token: "gamma", shouldError: true},
		{name: "empty", token: "", shouldError: true},
		{name: "bearer only", token: "Bearer ", shouldError: true},
		{name: "prefix of key", token: "alp", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientID, err := authenticator.Authenticate(ctx, tt.token)
			if tt.shouldError {
				if !errors.Is(err, ErrAuthenticationFailed) {
					t.Errorf("expected ErrAuthenticationFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(clientID, "key-") {
				t.Errorf("unexpected client id %q", clientID)
			}
		})
	}
}

func TestAPIKeyAuthenticatorClientIDs(t *testing.T) {
	authenticator := NewAPIKeyAuthenticator([]string{"alpha", "beta"})
	ctx := context.Background()

	first, _ := authenticator.Authenticate(ctx, "alpha")
	again, _ := authenticator.Authenticate(ctx, "Bearer alpha")
	other, _ := authenticator.Authenticate(ctx, "beta")

	if first != again {
		t.Errorf("client id must be stable, got %q and %q", first, again)
	}
	if first == other {
		t.Error("different keys must map to different client ids")
	}
	if strings.Contains(first, "alpha") {
		t.Error("client id must not expose the key")
	}
}
