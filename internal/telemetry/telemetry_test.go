package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/roar-platform/assessment-sdk/sdk"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfigFromEnv()
		assert.Equal(t, "roarctl", cfg.ServiceName)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 1.0, cfg.SamplingRate)
		assert.False(t, cfg.EnableTracing)
		assert.True(t, cfg.EnableMetrics)
		assert.False(t, cfg.ExportToFile)
		assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
		assert.Empty(t, cfg.PushGatewayURL)
	})

	t.Run("file export", func(t *testing.T) {
		t.Setenv("OTEL_EXPORT_TO_FILE", "true")
		t.Setenv("OTEL_TRACES_FILE_PATH", "/var/otel/t.json")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("OTEL_SAMPLING_RATE", "0.5")
		t.Setenv("PROMETHEUS_PUSHGATEWAY_URL", "http://pushgateway:9091")

		cfg := NewConfigFromEnv()
		assert.True(t, cfg.ExportToFile)
		assert.Equal(t, "/var/otel/t.json", cfg.TracesFilePath)
		assert.Equal(t, "/tmp/otel/logs.json", cfg.LogsFilePath)
		assert.Empty(t, cfg.OTLPEndpoint)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 0.5, cfg.SamplingRate)
		assert.Equal(t, "http://pushgateway:9091", cfg.PushGatewayURL)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		t.Setenv("ENABLE_METRICS", "maybe")
		t.Setenv("OTEL_SAMPLING_RATE", "lots")

		cfg := NewConfigFromEnv()
		assert.True(t, cfg.EnableMetrics)
		assert.Equal(t, 1.0, cfg.SamplingRate)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("level and service fields", func(t *testing.T) {
		l, fl, err := NewLogger(&Config{ServiceName: "roarctl", ServiceVersion: "1.2.3", Environment: "test", LogLevel: "warn"})
		require.NoError(t, err)
		assert.Nil(t, fl)
		assert.Equal(t, logrus.WarnLevel, l.GetLevel())

		hook := test.NewLocal(l)
		l.Warn("careful")

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, "roarctl", entry.Data["service.name"])
		assert.Equal(t, "1.2.3", entry.Data["service.version"])
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		l, _, err := NewLogger(&Config{LogLevel: "chatty"})
		require.NoError(t, err)
		assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	})

	t.Run("satisfies sdk.Logger", func(t *testing.T) {
		l, _, err := NewLogger(&Config{LogLevel: "debug"})
		require.NoError(t, err)
		var _ sdk.Logger = l
	})
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "roarctl.json")

	l, fl, err := NewLogger(&Config{
		ServiceName:  "roarctl",
		LogLevel:     "debug",
		ExportToFile: true,
		LogsFilePath: path,
	})
	require.NoError(t, err)
	require.NotNil(t, fl)
	l.SetOutput(io.Discard)

	l.WithFields(logrus.Fields{"command": "getRun", "attempt": 2}).Info("Command executed")
	l.WithError(errors.New("boom")).Error("Command failed")
	require.NoError(t, fl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "Command executed", lines[0]["message"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "getRun", lines[0]["command"])
	assert.Equal(t, float64(2), lines[0]["attempt"])
	assert.Equal(t, "roarctl", lines[0]["service.name"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestInitLogger_ReplacesGlobal(t *testing.T) {
	require.NoError(t, InitLogger(&Config{LogLevel: "error"}))
	assert.Equal(t, logrus.ErrorLevel, L().GetLevel())

	require.NoError(t, InitLogger(&Config{LogLevel: "debug"}))
	assert.Equal(t, logrus.DebugLevel, L().GetLevel())
	assert.NoError(t, CloseLogger())
}

func TestWithContext_AddsTraceIDs(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	entry := WithContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace.id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry.Data["span.id"])

	plain := WithContext(context.Background())
	assert.NotContains(t, plain.Data, "trace.id")
}

func TestFileTracerExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.json")
	exporter, err := NewFileTracerExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	inv := sdk.NewInvoker(&sdk.CommandContext{}, sdk.DefaultInvokerOptions().WithRetries(0))
	cmd := sdk.NewCommand("getRun", true, func(ctx context.Context, in string) (string, error) {
		return "ok", nil
	})
	_, err = sdk.Run(context.Background(), inv, cmd, "")
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var span FileSpan
	require.NoError(t, json.Unmarshal(data, &span))
	assert.Equal(t, "command getRun", span.Name)
	assert.Equal(t, "getRun", span.Attributes["command.name"])
	assert.Equal(t, "Ok", span.Status)
}

func TestInitTracing_Disabled(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	require.NoError(t, InitTracing(&Config{EnableTracing: false}))
	assert.NoError(t, CloseTracing(context.Background()))
}

func TestInitTracing_FileExport(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	path := filepath.Join(t.TempDir(), "traces.json")
	require.NoError(t, InitTracing(&Config{
		ServiceName:    "roarctl",
		EnableTracing:  true,
		ExportToFile:   true,
		TracesFilePath: path,
		SamplingRate:   1.0,
	}))

	_, span := StartSpan(context.Background(), "roarctl get")
	span.End()

	require.NoError(t, CloseTracing(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"roarctl get"`)
}

func TestInitTracing_ReplacesAndFlushesPreviousProvider(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")

	require.NoError(t, InitTracing(&Config{
		ServiceName:    "roarctl",
		EnableTracing:  true,
		ExportToFile:   true,
		TracesFilePath: first,
		SamplingRate:   1.0,
	}))
	_, span := StartSpan(context.Background(), "before reinit")
	span.End()

	require.NoError(t, InitTracing(&Config{
		ServiceName:    "roarctl",
		EnableTracing:  true,
		ExportToFile:   true,
		TracesFilePath: second,
		SamplingRate:   1.0,
	}))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"before reinit"`)

	_, span = StartSpan(context.Background(), "after reinit")
	span.End()
	require.NoError(t, CloseTracing(context.Background()))

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"after reinit"`)
	assert.NotContains(t, string(data), `"name":"before reinit"`)
}

func TestInitTracing_DisableShutsDownPreviousProvider(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	path := filepath.Join(t.TempDir(), "traces.json")
	require.NoError(t, InitTracing(&Config{
		EnableTracing:  true,
		ExportToFile:   true,
		TracesFilePath: path,
		SamplingRate:   1.0,
	}))
	_, span := StartSpan(context.Background(), "pending")
	span.End()

	require.NoError(t, InitTracing(&Config{EnableTracing: false}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"pending"`)
}
