package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/florianilch/matchctl/internal/credstore"
)

// HeaderRequestID carries the id that correlates a request and its retry.
const HeaderRequestID = "X-Request-Id"

// maxDrain limits how much of a rejected response body is read before the connection is
// reused.
const maxDrain = 64 << 10

// SessionRefresher obtains new tokens after an access token was rejected.
// *refresh.Coordinator implements it.
type SessionRefresher interface {
	Refresh(ctx context.Context, failedAccessToken string) (*credstore.Tokens, error)
}

type retriedKey struct{}

// markRetried flags ctx so that requests carrying it are never resent after a 401.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// Transport is an http.RoundTripper that authenticates requests with the stored session.
//
// A request answered with 401 is handed to the SessionRefresher and resent once with the
// tokens it returns. The resent request is never resent again, so a second 401 is returned
// to the caller unchanged.
type Transport struct {
	store     *credstore.Store
	refresher SessionRefresher
	base      http.RoundTripper
}

// Compile-time check that Transport implements http.RoundTripper
var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport sending through base, or http.DefaultTransport if base
// is nil.
func NewTransport(store *credstore.Store, refresher SessionRefresher, base http.RoundTripper) (*Transport, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if refresher == nil {
		return nil, fmt.Errorf("missing session refresher")
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		store:     store,
		refresher: refresher,
		base:      base,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	out, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))

	tokens, err := t.store.Tokens(ctx)
	if err != nil {
		closeBody(out)
		return nil, fmt.Errorf("authclient: reading session: %w", err)
	}

	resp, err := t.send(out, tokens)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || isRetried(ctx) {
		return resp, err
	}
	discard(resp)

	sent := ""
	if tokens != nil {
		sent = tokens.AccessToken
	}
	slog.DebugContext(ctx, "request unauthorized, refreshing session",
		"method", out.Method, "path", out.URL.Path, "request_id", out.Header.Get(HeaderRequestID))

	fresh, err := t.refresher.Refresh(ctx, sent)
	if err != nil {
		return nil, err
	}

	retry := out.Clone(markRetried(ctx))
	if out.GetBody != nil {
		if retry.Body, err = out.GetBody(); err != nil {
			return nil, fmt.Errorf("authclient: rewinding request body: %w", err)
		}
	}
	return t.send(retry, fresh)
}

// send attaches tokens, if any, and hands req to the base transport.
func (t *Transport) send(req *http.Request, tokens *credstore.Tokens) (*http.Response, error) {
	if tokens != nil && tokens.AccessToken != "" {
		tokens.OAuth2().SetAuthHeader(req)
	} else {
		req.Header.Del("Authorization")
	}
	return t.base.RoundTrip(req)
}

// rewindable returns a clone of req whose body can be replayed through GetBody.
// The original body is consumed and closed if it had to be buffered.
func rewindable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("authclient: buffering request body: %w", err)
	}

	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return out, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
