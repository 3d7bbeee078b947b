package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoSession is returned when a partial update finds no stored session to merge into.
	ErrNoSession = errors.New("credstore: no session to update")

	// ErrSessionChanged is returned by CompareAndUpdateTokens when the stored refresh token
	// is no longer the one the update was derived from.
	ErrSessionChanged = errors.New("credstore: session changed during update")
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used by IsExpired. Defaults to time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// Store persists the current credential bundle in the tokens and user slots of a Backend.
//
// Writers serialize on an in-process lock and readers never observe a bundle whose halves
// come from different writes. Cross-process consistency is whatever the backend offers for
// single-slot operations.
type Store struct {
	backend Backend
	now     func() time.Time

	mu sync.RWMutex
}

// New creates a Store on top of backend.
func New(backend Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing backend")
	}

	s := &Store{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save validates and writes bundle, replacing any existing session.
func (s *Store) Save(ctx context.Context, bundle Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, bundle)
}

// save writes the tokens slot and then the user slot. If the user write fails the tokens
// slot is put back to its previous record, so the halves never come from different writes.
func (s *Store) save(ctx context.Context, bundle Bundle) error {
	previous, err := s.backend.Get(ctx, SlotTokens)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reading %s: %w", SlotTokens, err)
	}
	hadPrevious := err == nil

	if err := s.put(ctx, SlotTokens, bundle.Tokens); err != nil {
		return err
	}
	if err := s.put(ctx, SlotUser, bundle.User); err != nil {
		return errors.Join(err, s.restoreTokens(context.WithoutCancel(ctx), previous, hadPrevious))
	}
	return nil
}

func (s *Store) restoreTokens(ctx context.Context, previous []byte, hadPrevious bool) error {
	if !hadPrevious {
		if err := s.backend.Delete(ctx, SlotTokens); err != nil {
			return fmt.Errorf("rolling back %s: %w", SlotTokens, err)
		}
		return nil
	}
	if err := s.backend.Put(ctx, SlotTokens, previous); err != nil {
		return fmt.Errorf("rolling back %s: %w", SlotTokens, err)
	}
	return nil
}

// Tokens returns the stored tokens, or nil if there is no session.
func (s *Store) Tokens(ctx context.Context) (*Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens Tokens
	found, err := s.get(ctx, SlotTokens, &tokens)
	if err != nil || !found {
		return nil, err
	}
	return &tokens, nil
}

// User returns the stored user, or nil if there is no session.
func (s *Store) User(ctx context.Context) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var user User
	found, err := s.get(ctx, SlotUser, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// Bundle returns the stored session, or nil if either half is missing.
func (s *Store) Bundle(ctx context.Context) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.bundle(ctx)
}

func (s *Store) bundle(ctx context.Context) (*Bundle, error) {
	var b Bundle
	found, err := s.get(ctx, SlotTokens, &b.Tokens)
	if err != nil || !found {
		return nil, err
	}
	found, err = s.get(ctx, SlotUser, &b.User)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

// AccessToken returns the stored access token, or "" if there is no session.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return "", err
	}
	return t.AccessToken, nil
}

// RefreshToken returns the stored refresh token, or "" if there is no session.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return "", err
	}
	return t.RefreshToken, nil
}

// IDToken returns the stored ID token, or "" if there is no session.
func (s *Store) IDToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return "", err
	}
	return t.IDToken, nil
}

// Clear removes the session. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, slot := range Slots {
		if err := s.backend.Delete(ctx, slot); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s: %w", slot, err))
		}
	}
	return errors.Join(errs...)
}

// IsExpired reports whether the stored access token has expired. An empty store is not
// considered expired; callers that need a valid session must check for tokens separately.
func (s *Store) IsExpired(ctx context.Context) (bool, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return false, err
	}
	return t.Expired(s.now()), nil
}

// UpdateTokens merges the non-zero fields of partial into the stored tokens and rewrites
// the whole bundle with the existing user. Returns ErrNoSession if no session is stored.
func (s *Store) UpdateTokens(ctx context.Context, partial Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateTokens(ctx, nil, partial)
}

// CompareAndUpdateTokens behaves like UpdateTokens but only writes if the stored refresh
// token still equals refreshToken. Returns ErrSessionChanged otherwise, leaving the store
// untouched.
func (s *Store) CompareAndUpdateTokens(ctx context.Context, refreshToken string, partial Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateTokens(ctx, &refreshToken, partial)
}

func (s *Store) updateTokens(ctx context.Context, expectedRefreshToken *string, partial Tokens) error {
	current, err := s.bundle(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNoSession
	}
	if expectedRefreshToken != nil && current.Tokens.RefreshToken != *expectedRefreshToken {
		return ErrSessionChanged
	}

	updated := Bundle{
		Tokens: current.Tokens.Merge(partial),
		User:   current.User,
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	return s.save(ctx, updated)
}

func (s *Store) get(ctx context.Context, slot Slot, v any) (bool, error) {
	data, err := s.backend.Get(ctx, slot)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", slot, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", slot, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, slot Slot, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", slot, err)
	}
	if err := s.backend.Put(ctx, slot, data); err != nil {
		return fmt.Errorf("writing %s: %w", slot, err)
	}
	return nil
}
