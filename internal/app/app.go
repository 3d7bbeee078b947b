package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/matchctl/internal/authclient"
	"github.com/florianilch/matchctl/internal/credstore"
	"github.com/florianilch/matchctl/internal/identity"
	"github.com/florianilch/matchctl/internal/proxy"
	"github.com/florianilch/matchctl/internal/refresh"
)

// Option configures an App.
type Option func(*options)

type options struct {
	backend      credstore.Backend
	onSessionEnd func(ctx context.Context, err error)
}

// WithBackend replaces the configured credential backend.
func WithBackend(backend credstore.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithSessionEndHandler registers fn to run after a failed refresh has cleared the
// session. It runs in addition to the built-in log entry.
func WithSessionEndHandler(fn func(ctx context.Context, err error)) Option {
	return func(o *options) {
		o.onSessionEnd = fn
	}
}

// App wires the credential store, refresh coordinator and API client, and runs the local
// gateway.
type App struct {
	cfg    *Config
	store  *credstore.Store
	client *authclient.Client
	proxy  *proxy.Proxy
}

// New creates a new App instance. No I/O is performed beyond preparing the storage
// backend.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = cfg.Storage.NewBackend()
		if err != nil {
			return nil, fmt.Errorf("failed to create credential backend: %w", err)
		}
	}

	store, err := credstore.New(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	idp, err := identity.New(cfg.Identity.BaseURL, identity.WithTimeout(cfg.Identity.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}

	coordinator, err := refresh.New(store, idp,
		refresh.WithTimeout(cfg.Refresh.Timeout),
		refresh.WithSessionEndHandler(sessionEnded(o.onSessionEnd)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh coordinator: %w", err)
	}

	client, err := authclient.New(store, idp, coordinator, cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	proxyServer, err := proxy.New(client.Transport(), proxy.WithBaseURL(cfg.API.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	if !cfg.Storage.Writable() {
		slog.Warn("storage is read-only, refreshed tokens are kept in memory until exit", "storage", cfg.Storage.Type)
	}

	return &App{
		cfg:    cfg,
		store:  store,
		client: client,
		proxy:  proxyServer,
	}, nil
}

func sessionEnded(next func(ctx context.Context, err error)) func(ctx context.Context, err error) {
	return func(ctx context.Context, err error) {
		slog.WarnContext(ctx, "session ended, sign in again with `matchctl login`", "error", err)
		if next != nil {
			next(ctx, err)
		}
	}
}

// Client returns the authenticated API client.
func (a *App) Client() *authclient.Client {
	return a.client
}

// Writable reports whether a login is persisted to the configured storage.
func (a *App) Writable() bool {
	return a.cfg.Storage.Writable()
}

// Store returns the credential store.
func (a *App) Store() *credstore.Store {
	return a.store
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway", "address", address, "upstream", a.cfg.API.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if status, err := a.client.Status(gCtx); err != nil {
		slog.WarnContext(gCtx, "reading session failed", "error", err)
	} else if !status.LoggedIn {
		slog.WarnContext(gCtx, "no session stored, requests are forwarded unauthenticated")
	}

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
