package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/florianilch/matchctl/internal/credstore"
)

// LoginResult is the outcome of a password login. Bundle is nil when the account
// requires confirmation before a session can be issued.
type LoginResult struct {
	Bundle               *credstore.Bundle
	RequiresConfirmation bool
	Message              string
}

type loginRequest struct {
	Email    openapi_types.Email `json:"email"`
	Password string              `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// tokenResponse is the token set returned by login and refresh.
type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
	// ExpiresIn is honored when ExpiresAt is absent.
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

func (t tokenResponse) tokens(now time.Time) credstore.Tokens {
	expiresAt := t.ExpiresAt
	if expiresAt.IsZero() && t.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return credstore.Tokens{
		AccessToken:  t.AccessToken,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt,
	}
}

type loginResponse struct {
	tokenResponse
	User                 *userResponse `json:"user,omitempty"`
	Message              string        `json:"message,omitempty"`
	RequiresConfirmation bool          `json:"requiresConfirmation,omitempty"`
}

type userResponse struct {
	ID        flexibleID `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Tenants   []string   `json:"tenants"`
}

func (u userResponse) user() credstore.User {
	return credstore.User{
		ID:        string(u.ID),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Tenants:   u.Tenants,
	}
}

// flexibleID accepts user ids encoded either as JSON strings or numbers.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

// errorResponse covers the error bodies the platform emits (RFC 9457 problem details and
// ad-hoc {"message"} / {"error"} objects).
type errorResponse struct {
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Detail, e.Message, e.Error, e.Title} {
		if s != "" {
			return s
		}
	}
	return ""
}
