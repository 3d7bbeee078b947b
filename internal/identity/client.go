package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/florianilch/matchctl/internal/credstore"
)

// DefaultTimeout bounds every identity request, including refreshes issued while the
// caller's own context is already gone.
const DefaultTimeout = 30 * time.Second

// defaultTokenType is assumed when a login response omits the token type.
const defaultTokenType = "Bearer"

// maxErrorBody limits how much of an error response is read into a StatusError.
const maxErrorBody = 4 << 10

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
	endpoints     Endpoints
}

// WithTransport sets a custom base transport for identity requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithEndpoints overrides the default endpoint paths.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *clientConfig) {
		c.endpoints = endpoints
	}
}

// StatusError is returned when the identity provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity provider returned status %d: %s", e.StatusCode, e.Message)
}

// Client calls the identity provider endpoints.
type Client struct {
	baseURL    *url.URL
	endpoints  Endpoints
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client for the identity provider at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid identity base URL %q: scheme and host required", baseURL)
	}

	cfg := &clientConfig{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
		endpoints:     DefaultEndpoints(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		baseURL:   u,
		endpoints: cfg.endpoints,
		// Must not be the authenticating transport: refreshes would re-enter the coordinator.
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: cfg.baseTransport,
		},
		now: time.Now,
	}, nil
}

// Login exchanges e-mail and password for a credential bundle.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := loginRequest{
		Email:    openapi_types.Email(email),
		Password: password,
	}

	var resp loginResponse
	if err := c.postJSON(ctx, c.endpoints.Login, req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.RequiresConfirmation {
		return &LoginResult{
			RequiresConfirmation: true,
			Message:              resp.Message,
		}, nil
	}

	if resp.User == nil {
		return nil, errors.New("login: response contains no user")
	}

	tokens := resp.tokens(c.now())
	if tokens.TokenType == "" {
		tokens.TokenType = defaultTokenType
	}
	bundle := &credstore.Bundle{
		Tokens: tokens,
		User:   resp.User.user(),
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	return &LoginResult{
		Bundle:  bundle,
		Message: resp.Message,
	}, nil
}

// Refresh exchanges a refresh token for a new token set. Fields the provider omits
// (typically the refresh token itself) are left empty for the caller to merge.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*credstore.Tokens, error) {
	var resp tokenResponse
	if err := c.postJSON(ctx, c.endpoints.Refresh, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("refresh: response contains no access token")
	}

	tokens := resp.tokens(c.now())
	return &tokens, nil
}

// NewLogoutRequest builds the session termination request. It carries no credentials;
// send it through an authenticating client.
func (c *Client) NewLogoutRequest(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.endpoints.Logout), http.NoBody)
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is not closed.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var parsed errorResponse
	message := ""
	if json.Unmarshal(body, &parsed) == nil {
		message = parsed.text()
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

func (c *Client) url(path string) string {
	return c.baseURL.JoinPath(path).String()
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
