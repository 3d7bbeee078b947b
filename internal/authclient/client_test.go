package authclient

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/matchctl/internal/credstore"
)

func TestClient_Login(t *testing.T) {
	h := newHarness(t, harnessConfig{
		login: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{
				"accessToken": "access-1", "idToken": "id-1", "refreshToken": "refresh-1", "tokenType": "Bearer",
				"expiresAt": "2030-01-01T00:00:00Z",
				"user": {"id": 7, "email": "ada@example.com", "tenants": ["t1", "t2"]}
			}`)
		},
	})

	result, err := h.client.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, result.Bundle)

	bundle, err := h.store.Bundle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, *result.Bundle, *bundle)
	assert.Equal(t, "7", bundle.User.ID)
}

func TestClient_LoginRequiresConfirmation(t *testing.T) {
	h := newHarness(t, harnessConfig{
		login: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"requiresConfirmation": true, "message": "confirm your e-mail"}`)
		},
	})

	result, err := h.client.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, result.RequiresConfirmation)
	assert.Equal(t, "confirm your e-mail", result.Message)

	bundle, err := h.store.Bundle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bundle)
}

func TestClient_LoginRejectedKeepsExistingSession(t *testing.T) {
	h := newHarness(t, harnessConfig{
		session: defaultSession(),
		login: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	})

	_, err := h.client.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)

	token, err := h.store.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestClient_Logout(t *testing.T) {
	h := newHarness(t, harnessConfig{session: defaultSession()})

	require.NoError(t, h.client.Logout(context.Background()))

	assert.Equal(t, int32(1), h.logoutCalls.Load())
	assert.Equal(t, "Bearer access-1", h.logoutAuth.Load())

	bundle, err := h.store.Bundle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bundle)
}

func TestClient_LogoutRemoteFailureStillClears(t *testing.T) {
	h := newHarness(t, harnessConfig{
		session: defaultSession(),
		logout: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	require.NoError(t, h.client.Logout(context.Background()))
	assert.Equal(t, int32(1), h.logoutCalls.Load())

	bundle, err := h.store.Bundle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bundle)
}

func TestClient_LogoutWithoutSession(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.client.Logout(context.Background()))
	assert.Zero(t, h.logoutCalls.Load())
}

func TestClient_TokensRefreshesExpired(t *testing.T) {
	session := defaultSession()
	session.Tokens.ExpiresAt = testNow.Add(-time.Second)
	h := newHarness(t, harnessConfig{session: session})

	tokens, err := h.client.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, int32(1), h.refreshCalls.Load())
}

func TestClient_TokensValid(t *testing.T) {
	h := newHarness(t, harnessConfig{session: defaultSession()})

	tokens, err := h.client.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Zero(t, h.refreshCalls.Load())
}

func TestClient_TokensWithoutSession(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	_, err := h.client.Tokens(context.Background())
	require.ErrorIs(t, err, credstore.ErrNoSession)
}

func TestClient_Status(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	status, err := h.client.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.LoggedIn)
	assert.Nil(t, status.User)

	require.NoError(t, h.store.Save(context.Background(), *defaultSession()))

	status, err = h.client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.LoggedIn)
	assert.False(t, status.Expired)
	assert.Equal(t, "ada@example.com", status.User.Email)
	assert.True(t, testNow.Add(time.Hour).Equal(status.ExpiresAt))
}

func TestClient_NewRequest(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	req, err := h.client.NewRequest(context.Background(), http.MethodGet, "matches/42?expand=teams", nil)
	require.NoError(t, err)

	base := h.client.BaseURL()
	assert.Equal(t, base.String()+"/matches/42?expand=teams", req.URL.String())
}

func TestNew_Validation(t *testing.T) {
	store, err := credstore.New(credstore.NewMemoryBackend())
	require.NoError(t, err)

	_, err = New(store, nil, &fakeRefresher{}, "https://api.example.com")
	require.Error(t, err)
}
