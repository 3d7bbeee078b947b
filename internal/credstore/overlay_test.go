package credstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnvOverlayStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("TEST_MATCHCTL_TOKENS", `{"accessToken":"a","idToken":"i","refreshToken":"r","tokenType":"Bearer","expiresAt":"2030-01-01T00:00:00Z"}`)
	t.Setenv("TEST_MATCHCTL_USER", `{"id":"7","email":"ada@example.com","tenants":null}`)

	env, err := NewEnvBackend("TEST_MATCHCTL_TOKENS", "TEST_MATCHCTL_USER")
	require.NoError(t, err)
	s, err := New(NewOverlayBackend(env))
	require.NoError(t, err)
	return s
}

func TestOverlayBackend_UpdateShadowsBase(t *testing.T) {
	ctx := context.Background()
	s := newEnvOverlayStore(t)

	require.NoError(t, s.UpdateTokens(ctx, Tokens{AccessToken: "a2", RefreshToken: "r2"}))

	bundle, err := s.Bundle(ctx)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, "a2", bundle.Tokens.AccessToken)
	assert.Equal(t, "r2", bundle.Tokens.RefreshToken)
	assert.Equal(t, "i", bundle.Tokens.IDToken)
	assert.Equal(t, "7", bundle.User.ID)

	assert.Contains(t, os.Getenv("TEST_MATCHCTL_TOKENS"), `"accessToken":"a"`, "environment is never written")
}

func TestOverlayBackend_ClearHidesBase(t *testing.T) {
	ctx := context.Background()
	s := newEnvOverlayStore(t)

	require.NoError(t, s.Clear(ctx))

	bundle, err := s.Bundle(ctx)
	require.NoError(t, err)
	assert.Nil(t, bundle)

	require.NoError(t, s.Save(ctx, testBundle(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC))))
	token, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}
