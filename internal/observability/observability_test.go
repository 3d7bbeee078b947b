package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInstrument_Text(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: "text", Writer: &buf})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	slog.Debug("hidden")
	slog.Info("session tokens refreshed", "waiters", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="session tokens refreshed"`)
	assert.Contains(t, out, "waiters=3")
}

func TestInstrument_JSON(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelDebug, Format: "json", Writer: &buf})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	slog.Debug("refreshing session tokens")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "refreshing session tokens", record["msg"])
}

func TestInstrument_StdoutExporter(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelWarn, Exporter: ExporterStdout, Writer: &buf})
	require.NoError(t, err)

	slog.Info("below threshold")
	slog.Warn("session refresh failed, session ended")

	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "session refresh failed, session ended")
	assert.NotContains(t, out, "below threshold")
}

func TestInstrument_InstallsPropagator(t *testing.T) {
	restoreDefaultLogger(t)

	shutdown, err := Instrument(context.Background(), Options{Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestInstrument_Invalid(t *testing.T) {
	restoreDefaultLogger(t)

	_, err := Instrument(context.Background(), Options{Format: "xml", Writer: &bytes.Buffer{}})
	require.Error(t, err)

	_, err = Instrument(context.Background(), Options{Exporter: "carrier-pigeon", Writer: &bytes.Buffer{}})
	require.Error(t, err)
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug - 4, minsev.SeverityDebug},
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, severity(tt.level))
		})
	}
}
