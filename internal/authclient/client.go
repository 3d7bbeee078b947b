package authclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/florianilch/matchctl/internal/credstore"
	"github.com/florianilch/matchctl/internal/identity"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseTransport http.RoundTripper
}

// WithBaseTransport sets the transport authenticated requests are sent through.
// If not provided, http.DefaultTransport is used.
func WithBaseTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// Status describes the local session.
type Status struct {
	LoggedIn  bool
	User      *credstore.User
	ExpiresAt time.Time
	Expired   bool
}

// Client performs session operations and authenticated calls against the API.
type Client struct {
	store      *credstore.Store
	identity   *identity.Client
	refresher  SessionRefresher
	transport  *Transport
	httpClient *http.Client
	baseURL    *url.URL
}

// New creates a Client for the API at apiBaseURL.
func New(store *credstore.Store, idp *identity.Client, refresher SessionRefresher, apiBaseURL string, opts ...Option) (*Client, error) {
	if idp == nil {
		return nil, fmt.Errorf("missing identity client")
	}

	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host required", apiBaseURL)
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	transport, err := NewTransport(store, refresher, cfg.baseTransport)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		identity:   idp,
		refresher:  refresher,
		transport:  transport,
		httpClient: &http.Client{Transport: transport},
		baseURL:    u,
	}, nil
}

// Transport returns the authenticating transport shared by every request of c.
func (c *Client) Transport() *Transport {
	return c.transport
}

// HTTPClient returns an http.Client whose requests carry the session credentials.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Login signs in and stores the resulting session. If the provider asks for a
// confirmation step, the result is returned and nothing is stored.
func (c *Client) Login(ctx context.Context, email, password string) (*identity.LoginResult, error) {
	result, err := c.identity.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if result.RequiresConfirmation {
		slog.InfoContext(ctx, "login requires confirmation", "email", email)
		return result, nil
	}

	if err := c.store.Save(ctx, *result.Bundle); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	slog.InfoContext(ctx, "logged in", "user_id", result.Bundle.User.ID)
	return result, nil
}

// Logout notifies the identity provider and clears the local session. The remote call is
// advisory: its failures are logged and do not affect the result.
func (c *Client) Logout(ctx context.Context) error {
	token, err := c.store.AccessToken(ctx)
	if err != nil {
		slog.WarnContext(ctx, "reading session before logout failed", "error", err)
	}

	if token != "" {
		if err := c.notifyLogout(ctx); err != nil {
			slog.WarnContext(ctx, "remote logout failed", "error", err)
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	slog.InfoContext(ctx, "logged out")
	return nil
}

func (c *Client) notifyLogout(ctx context.Context) error {
	req, err := c.identity.NewLogoutRequest(ctx)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return identity.CheckResponse(resp)
}

// NewRequest builds a request for path relative to the API base URL. path may carry a
// query string.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path: %w", err)
	}

	u := c.baseURL.JoinPath(strings.TrimPrefix(ref.Path, "/"))
	u.RawQuery = ref.RawQuery

	return http.NewRequestWithContext(ctx, method, u.String(), body)
}

// Do sends req with the session credentials.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Tokens returns the stored tokens, refreshing them first if they have expired.
func (c *Client) Tokens(ctx context.Context) (*credstore.Tokens, error) {
	tokens, err := c.store.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, credstore.ErrNoSession
	}
	expired, err := c.store.IsExpired(ctx)
	if err != nil {
		return nil, err
	}
	if !expired {
		return tokens, nil
	}

	slog.DebugContext(ctx, "access token expired, refreshing", "expires_at", tokens.ExpiresAt)
	return c.refresher.Refresh(ctx, tokens.AccessToken)
}

// Status reports the local session without contacting any server.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	bundle, err := c.store.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return &Status{}, nil
	}

	expired, err := c.store.IsExpired(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		LoggedIn:  true,
		User:      &bundle.User,
		ExpiresAt: bundle.Tokens.ExpiresAt,
		Expired:   expired,
	}, nil
}
