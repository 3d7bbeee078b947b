// Package observability configures logging and trace propagation for the process.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/matchctl"

// Exporter selects where log records go.
type Exporter string

const (
	// ExporterNone writes records with a plain slog handler.
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
)

// ShutdownFunc flushes and releases what Instrument set up.
type ShutdownFunc func(context.Context) error

// Options configures Instrument.
type Options struct {
	Level    slog.Level
	Format   string // text or json, used with ExporterNone
	Exporter Exporter
	// Writer receives plain and stdout-exported records. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the default slog logger and the global W3C trace context
// propagator. The returned ShutdownFunc must be called before exit to flush exporters.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Exporter == "" {
		opts.Exporter = ExporterNone
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.Exporter == ExporterNone {
		handler, err := newHandler(opts)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", opts.Exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	slog.SetDefault(otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(provider)))

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

func newHandler(opts Options) (slog.Handler, error) {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	switch opts.Format {
	case "", "text":
		return slog.NewTextHandler(opts.Writer, handlerOpts), nil
	case "json":
		return slog.NewJSONHandler(opts.Writer, handlerOpts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
}

// newExporter builds the configured exporter. OTLP exporters read their endpoint and
// headers from the standard OTEL_EXPORTER_OTLP_* environment variables.
func newExporter(ctx context.Context, opts Options) (sdklog.Exporter, error) {
	switch opts.Exporter {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(opts.Writer))
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", opts.Exporter)
	}
}

// severity maps slog levels onto OpenTelemetry severities.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
