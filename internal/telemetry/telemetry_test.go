package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/askflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "askflow-test",
		SampleRate:   0.5,
	}

	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestProviders_ShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStageInstruments_RecordsSpanAndMetrics(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	spans := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	inst, err := NewStageInstruments()
	require.NoError(t, err)

	ctx := context.Background()
	_, span := inst.Start(ctx, "task-1", "critique", 2)
	span.End(ctx, "warning", "rewrite", nil)

	_, failed := inst.Start(ctx, "task-1", "rewrite", 2)
	failed.End(ctx, "error", "", errors.New("contract violation"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "askflow.stage.critique", ended[0].Name())
	assert.Equal(t, "askflow.stage.rewrite", ended[1].Name())
	assert.Len(t, ended[1].Events(), 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["askflow.stage.executions"])
	assert.True(t, names["askflow.stage.duration"])
}
