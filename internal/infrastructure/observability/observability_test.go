package observability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/janhq/companion-relay/internal/config"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		endpoint string
		insecure bool
	}{
		{"https://otel.example.com:4318", "otel.example.com:4318", false},
		{"http://collector:4318", "collector:4318", true},
		{"collector:4318", "collector:4318", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			endpoint, insecure := normalizeEndpoint(tt.raw)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestSetupWithoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	cfg := &config.Config{
		ServiceName:           "companion-relay",
		Environment:           "test",
		NodeID:                "relay-test",
		TraceSampling:         1,
		RelayDisconnectPolicy: config.DisconnectContinue,
		RelaySerialization:    config.SerializationNone,
		RegistryDriver:        config.DriverMemory,
	}
	shutdown, err := Setup(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "relay.exchange")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

func TestNewExportersBuildsBothSignals(t *testing.T) {
	ctx := context.Background()
	traceExporter, metricExporter, err := newExporters(ctx, "http://127.0.0.1:4318")
	require.NoError(t, err)
	require.NotNil(t, traceExporter)
	require.NotNil(t, metricExporter)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, traceExporter.Shutdown(shutdownCtx))
	assert.NoError(t, metricExporter.Shutdown(shutdownCtx))
}
