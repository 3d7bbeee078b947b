package credstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

// ErrInvalidBundle is returned when a bundle is missing required fields.
var ErrInvalidBundle = errors.New("credstore: invalid credential bundle")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Tokens is the token set issued by the identity provider.
type Tokens struct {
	AccessToken  string    `json:"accessToken" validate:"required"`
	IDToken      string    `json:"idToken" validate:"required"`
	RefreshToken string    `json:"refreshToken" validate:"required"`
	TokenType    string    `json:"tokenType" validate:"required"`
	ExpiresAt    time.Time `json:"expiresAt" validate:"required"`
}

// Merge returns t with every non-zero field of patch applied on top.
func (t Tokens) Merge(patch Tokens) Tokens {
	if patch.AccessToken != "" {
		t.AccessToken = patch.AccessToken
	}
	if patch.IDToken != "" {
		t.IDToken = patch.IDToken
	}
	if patch.RefreshToken != "" {
		t.RefreshToken = patch.RefreshToken
	}
	if patch.TokenType != "" {
		t.TokenType = patch.TokenType
	}
	if !patch.ExpiresAt.IsZero() {
		t.ExpiresAt = patch.ExpiresAt
	}
	return t
}

// Expired reports whether the access token is expired at now.
func (t Tokens) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// OAuth2 converts t to an oauth2.Token. The ID token is available as the "id_token" extra.
func (t Tokens) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	return tok.WithExtra(map[string]any{"id_token": t.IDToken})
}

// User identifies the account a session belongs to.
type User struct {
	ID        string   `json:"id" validate:"required"`
	Email     string   `json:"email" validate:"required,email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Tenants   []string `json:"tenants"`
}

// Bundle is the unit of persisted session state. Tokens and User are always stored and
// cleared together.
type Bundle struct {
	Tokens Tokens `json:"tokens"`
	User   User   `json:"user"`
}

// Validate checks that b is well-formed.
func (b Bundle) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	return nil
}
