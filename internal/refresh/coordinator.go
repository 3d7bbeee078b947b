package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/matchctl/internal/credstore"
)

// DefaultTimeout bounds a single refresh request.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/florianilch/matchctl/internal/refresh"

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*credstore.Tokens, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the upper bound for one refresh request. Defaults to DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithSessionEndHandler registers fn to be called once for every refresh attempt that
// fails, after the store has been cleared.
func WithSessionEndHandler(fn func(ctx context.Context, err error)) Option {
	return func(c *Coordinator) {
		c.onSessionEnd = fn
	}
}

// waiter is a caller suspended behind an in-flight refresh. Exactly one of resolve or
// reject is invoked, synchronously, when the refresh settles.
type waiter struct {
	resolve func(*credstore.Tokens)
	reject  func(error)
}

type outcome struct {
	tokens *credstore.Tokens
	err    error
}

// Coordinator ensures at most one token refresh is outstanding. Callers that hit an
// authentication failure while a refresh is running wait for it and share its result.
type Coordinator struct {
	store        *credstore.Store
	refresher    Refresher
	timeout      time.Duration
	onSessionEnd func(ctx context.Context, err error)
	tracer       trace.Tracer

	mu         sync.Mutex
	refreshing bool
	// waiters is non-empty only while refreshing is set.
	waiters []waiter
}

// New creates a Coordinator that reads and updates the session in store.
func New(store *credstore.Store, refresher Refresher, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if refresher == nil {
		return nil, fmt.Errorf("missing refresher")
	}

	c := &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   DefaultTimeout,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh obtains a fresh token set after failedAccessToken was rejected.
//
// The first caller starts the refresh; callers arriving while it runs wait for its
// outcome instead of issuing their own request. If the store already holds a different
// access token than failedAccessToken, that token is returned without a refresh.
//
// A started refresh runs to completion even if ctx is canceled. A waiting caller whose
// ctx ends stops waiting and returns ctx.Err().
func (c *Coordinator) Refresh(ctx context.Context, failedAccessToken string) (*credstore.Tokens, error) {
	if tokens, ok := c.newerSession(ctx, failedAccessToken); ok {
		slog.DebugContext(ctx, "session already refreshed, reusing current token")
		return tokens, nil
	}

	result := make(chan outcome, 1)
	w := waiter{
		resolve: func(t *credstore.Tokens) { result <- outcome{tokens: t} },
		reject:  func(err error) { result <- outcome{err: err} },
	}

	if c.join(w) {
		select {
		case o := <-result:
			return o.tokens, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return c.run(ctx, failedAccessToken)
}

// join queues w behind an in-flight refresh and reports true. If no refresh is running it
// marks one as started and reports false; the caller then owns the refresh.
func (c *Coordinator) join(w waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		c.waiters = append(c.waiters, w)
		return true
	}
	c.refreshing = true
	return false
}

// drain returns to idle and hands back the queued waiters in arrival order.
func (c *Coordinator) drain() []waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	return waiters
}

func (c *Coordinator) run(ctx context.Context, failedAccessToken string) (*credstore.Tokens, error) {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "refresh.session")
	defer span.End()

	tokens, err := c.refresh(ctx, failedAccessToken)
	if err != nil {
		// Cleared before draining so a caller arriving after the drain cannot reuse the
		// rejected refresh token.
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			slog.ErrorContext(ctx, "failed to clear session after refresh failure", "error", clearErr)
		}
	}

	waiters := c.drain()
	span.SetAttributes(attribute.Int("refresh.waiters", len(waiters)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		slog.WarnContext(ctx, "session refresh failed, session ended", "error", err, "waiters", len(waiters))

		for _, w := range waiters {
			w.reject(err)
		}
		if c.onSessionEnd != nil {
			c.onSessionEnd(ctx, err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "session tokens refreshed", "waiters", len(waiters), "expires_at", tokens.ExpiresAt)
	for _, w := range waiters {
		w.resolve(tokens)
	}
	return tokens, nil
}

// refresh performs one refresh request and persists the result. No request is made if a
// refresh that settled before this one took ownership already replaced failedAccessToken.
func (c *Coordinator) refresh(ctx context.Context, failedAccessToken string) (*credstore.Tokens, error) {
	if tokens, ok := c.newerSession(ctx, failedAccessToken); ok {
		slog.DebugContext(ctx, "session already refreshed, reusing current token")
		return tokens, nil
	}

	current, err := c.store.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: reading session: %w", err)
	}
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	slog.InfoContext(ctx, "refreshing session tokens")

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fresh, err := c.refresher.Refresh(reqCtx, current.RefreshToken)
	if err != nil {
		return nil, &RefreshRequestError{Err: err}
	}

	err = c.store.CompareAndUpdateTokens(ctx, current.RefreshToken, *fresh)
	if errors.Is(err, credstore.ErrSessionChanged) {
		// A login replaced the session while the request was in flight.
		slog.InfoContext(ctx, "session replaced during refresh, discarding refreshed tokens")
		latest, err := c.store.Tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh: reading session: %w", err)
		}
		if latest == nil {
			return nil, credstore.ErrNoSession
		}
		return latest, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: persisting tokens: %w", err)
	}

	merged := current.Merge(*fresh)
	return &merged, nil
}

// newerSession returns the stored tokens if they differ from the rejected access token.
func (c *Coordinator) newerSession(ctx context.Context, failedAccessToken string) (*credstore.Tokens, bool) {
	if failedAccessToken == "" {
		return nil, false
	}

	tokens, err := c.store.Tokens(ctx)
	if err != nil || tokens == nil || tokens.AccessToken == "" || tokens.AccessToken == failedAccessToken {
		return nil, false
	}
	return tokens, true
}
