package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/florianilch/matchctl/internal/authclient"
	"github.com/florianilch/matchctl/internal/refresh"
)

// Proxy is the local gateway that forwards requests to the API with the session
// credentials attached.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL sets the upstream API base URL. Required.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// New creates a gateway that sends every request through transport, which is expected to
// authenticate it.
func New(transport http.RoundTripper, opts ...Option) (*Proxy, error) {
	if transport == nil {
		return nil, fmt.Errorf("missing transport")
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host required", cfg.baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Credentials are owned by the gateway.
			pr.Out.Header.Del("Authorization")
		},
		// FlushInterval: -1 flushes only when the backend flushes, so streamed responses reach
		// the client as soon as the upstream API sends them.
		FlushInterval: -1,
		Transport:     transport,
		ErrorHandler:  handleUpstreamError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, map[string]string{"status": "ok"}, http.StatusOK)
	})
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Logging(logger),
		RequestID,
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// handleUpstreamError reports failures of the authenticated round trip. A refresh that
// ended the session maps to 401 so gateway clients can prompt for a new login.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if refresh.IsSessionEnded(err) {
		slog.WarnContext(ctx, "session ended while proxying", "error", err)
		writeJSONError(w, r, codeSessionExpired, "session expired, run `matchctl login`", http.StatusUnauthorized)
		return
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing to write.
		slog.DebugContext(ctx, "client canceled request", "path", r.URL.Path, "request_id", r.Header.Get(authclient.HeaderRequestID))
		return
	}

	slog.ErrorContext(ctx, "upstream request failed", "error", err, "request_id", r.Header.Get(authclient.HeaderRequestID))
	writeJSONError(w, r, codeUpstream, "upstream request failed", http.StatusBadGateway)
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 15 * time.Minute, // Inbound: Write entire response to client (allows long streams, still bounded)
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
