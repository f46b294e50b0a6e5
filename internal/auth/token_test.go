package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/entity-client/internal/auth"
)

func TestToken_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    *auth.Token
		expected bool
	}{
		{name: "nil token", token: nil, expected: false},
		{name: "empty access token", token: &auth.Token{}, expected: false},
		{name: "valid token without expiry", token: &auth.Token{AccessToken: "test-token"}, expected: true},
		{
			name:     "valid token with future expiry",
			token:    &auth.Token{AccessToken: "test-token", ExpiresAt: time.Now().Add(time.Hour)},
			expected: true,
		},
		{
			name:     "expired token",
			token:    &auth.Token{AccessToken: "test-token", ExpiresAt: time.Now().Add(-time.Hour)},
			expected: false,
		},
		{
			name:     "token expiring within buffer",
			token:    &auth.Token{AccessToken: "test-token", ExpiresAt: time.Now().Add(15 * time.Second)},
			expected: false,
		},
		{
			name:     "token expiring just outside buffer",
			token:    &auth.Token{AccessToken: "test-token", ExpiresAt: time.Now().Add(35 * time.Second)},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.token.Valid())
		})
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()

	store := auth.NewTokenStore()
	assert.Nil(t, store.Get())

	store.Set(&auth.Token{AccessToken: "test-token", TokenType: "bearer"})
	assert.Equal(t, "test-token", store.Get().AccessToken)

	store.Clear()
	assert.Nil(t, store.Get())
}

func TestTokenStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := auth.NewTokenStore()
	done := make(chan bool)

	for _, value := range []string{"token-1", "token-2"} {
		go func(value string) {
			for range 100 {
				store.Set(&auth.Token{AccessToken: value})
			}

			done <- true
		}(value)

		go func() {
			for range 100 {
				_ = store.Get()
			}

			done <- true
		}()
	}

	for range 4 {
		<-done
	}

	finalToken := store.Get()
	assert.NotNil(t, finalToken)
	assert.True(t, finalToken.AccessToken == "token-1" || finalToken.AccessToken == "token-2")
}
