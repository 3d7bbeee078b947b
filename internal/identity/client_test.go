package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)

	_, err = New("/relative/only")
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"email": "ada@example.com", "password": "hunter22"}, body)

		_, _ = io.WriteString(w, `{
			"accessToken": "access",
			"idToken": "id",
			"refreshToken": "refresh",
			"tokenType": "Bearer",
			"expiresAt": "2030-01-01T00:00:00Z",
			"user": {"id": "u-1", "email": "ada@example.com", "firstName": "Ada", "lastName": "Lovelace", "tenants": ["t1"]}
		}`)
	})

	result, err := c.Login(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, result.Bundle)
	assert.False(t, result.RequiresConfirmation)

	assert.Equal(t, "access", result.Bundle.Tokens.AccessToken)
	assert.Equal(t, "id", result.Bundle.Tokens.IDToken)
	assert.Equal(t, "refresh", result.Bundle.Tokens.RefreshToken)
	assert.Equal(t, "Bearer", result.Bundle.Tokens.TokenType)
	assert.True(t, result.Bundle.Tokens.ExpiresAt.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, "u-1", result.Bundle.User.ID)
	assert.Equal(t, "Ada", result.Bundle.User.FirstName)
	assert.Equal(t, []string{"t1"}, result.Bundle.User.Tenants)
}

func TestLogin_NumericUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"accessToken": "access", "idToken": "id", "refreshToken": "refresh", "tokenType": "Bearer",
			"expiresAt": "2030-01-01T00:00:00Z",
			"user": {"id": 1234, "email": "ada@example.com"}
		}`)
	})

	result, err := c.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "1234", result.Bundle.User.ID)
}

func TestLogin_RequiresConfirmation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"requiresConfirmation": true, "message": "check your inbox"}`)
	})

	result, err := c.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, result.RequiresConfirmation)
	assert.Equal(t, "check your inbox", result.Message)
	assert.Nil(t, result.Bundle)
}

func TestLogin_MalformedEmailNotSent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.Login(context.Background(), "not-an-email", "pw")
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"title": "Unauthorized", "status": 401, "detail": "invalid credentials"}`)
	})

	_, err := c.Login(context.Background(), "ada@example.com", "wrong")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "invalid credentials", statusErr.Message)
}

func TestRefresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"refreshToken": "refresh-1"}, body)

		_, _ = io.WriteString(w, `{"accessToken": "access-2", "idToken": "id-2", "tokenType": "Bearer", "expiresAt": "2030-01-01T00:00:00Z"}`)
	})

	tokens, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tokens.AccessToken)
	assert.Equal(t, "id-2", tokens.IDToken)
	assert.Empty(t, tokens.RefreshToken, "omitted refresh token is left for the caller to merge")
}

func TestRefresh_ExpiresIn(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"accessToken": "access-2", "expiresIn": 3600}`)
	})
	c.now = func() time.Time { return now }

	tokens, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), tokens.ExpiresAt)
}

func TestRefresh_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"plain text", http.StatusBadRequest, "refresh token revoked\n", http.StatusBadRequest, "refresh token revoked"},
		{"message field", http.StatusUnauthorized, `{"message": "expired"}`, http.StatusUnauthorized, "expired"},
		{"error field", http.StatusInternalServerError, `{"error": "boom"}`, http.StatusInternalServerError, "boom"},
		{"empty body", http.StatusBadGateway, "", http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Refresh(context.Background(), "refresh-1")

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
			assert.Equal(t, tt.wantMsg, statusErr.Message)
		})
	}
}

func TestRefresh_MissingAccessToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	_, err := c.Refresh(context.Background(), "refresh-1")
	require.Error(t, err)
}

func TestRefresh_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.Refresh(context.Background(), "refresh-1")
	require.Error(t, err)
}

func TestWithEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/auth/refresh", r.URL.Path)
		_, _ = io.WriteString(w, `{"accessToken": "a"}`)
	}, WithEndpoints(Endpoints{
		Login:   "/v1/public/auth/login",
		Refresh: "/v1/public/auth/refresh",
		Logout:  "/v1/public/auth/logout",
	}))

	_, err := c.Refresh(context.Background(), "r")
	require.NoError(t, err)
}

func TestNewLogoutRequest(t *testing.T) {
	c, err := New("https://id.example.com/api")
	require.NoError(t, err)

	req, err := c.NewLogoutRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://id.example.com/api/auth/logout", req.URL.String())
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestLogin_DefaultTokenType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"accessToken": "access", "idToken": "id", "refreshToken": "refresh", "expiresIn": 900,
			"user": {"id": "u-1", "email": "ada@example.com"}
		}`)
	})

	result, err := c.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", result.Bundle.Tokens.TokenType)
	assert.False(t, result.Bundle.Tokens.ExpiresAt.IsZero())
}
