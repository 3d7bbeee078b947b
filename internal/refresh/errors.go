package refresh

import (
	"errors"
	"fmt"

	"github.com/florianilch/matchctl/internal/credstore"
	"github.com/florianilch/matchctl/internal/identity"
)

// ErrNoRefreshToken is returned when a refresh is needed but no refresh token is stored.
var ErrNoRefreshToken = errors.New("refresh: no refresh token available")

// RefreshRequestError is returned when the identity provider rejected the refresh or
// could not be reached.
type RefreshRequestError struct {
	Err error
}

func (e *RefreshRequestError) Error() string {
	return fmt.Sprintf("refresh: token refresh failed: %v", e.Err)
}

func (e *RefreshRequestError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status the identity provider answered with, or 0 if the
// request failed before a response arrived.
func (e *RefreshRequestError) StatusCode() int {
	var statusErr *identity.StatusError
	if errors.As(e.Err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsSessionEnded reports whether err means the session is gone and the user has to sign
// in again.
func IsSessionEnded(err error) bool {
	var reqErr *RefreshRequestError
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, credstore.ErrNoSession) || errors.As(err, &reqErr)
}
