package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/janhq/companion-relay/internal/config"
)

const metricExportInterval = 30 * time.Second

// Shutdown flushes and releases telemetry providers.
type Shutdown func(ctx context.Context) error

// Setup installs the global tracer and meter providers. Without an OTLP
// endpoint the providers record nothing but spans still propagate, so the
// relay observer and HTTP middleware behave the same in every environment.
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Shutdown, error) {
	log = log.With().Str("component", "observability").Logger()

	res, err := relayResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampling))),
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.EnableTracing && cfg.OTLPEndpoint != "" {
		traceExporter, metricExporter, err := newExporters(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(traceExporter))
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricExportInterval)),
		))
		log.Info().
			Str("endpoint", cfg.OTLPEndpoint).
			Float64("sampling", cfg.TraceSampling).
			Msg("otlp export enabled")
	} else {
		log.Info().Msg("otlp export disabled")
	}

	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		err := errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
		if err != nil {
			log.Error().Err(err).Msg("telemetry shutdown")
		}
		return err
	}, nil
}

func relayResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
			semconv.ServiceInstanceID(cfg.NodeID),
			attribute.String("relay.disconnect_policy", cfg.RelayDisconnectPolicy),
			attribute.String("relay.serialization", cfg.RelaySerialization),
			attribute.String("relay.registry", cfg.RegistryDriver),
		),
	)
}

func newExporters(ctx context.Context, rawEndpoint string) (*otlptrace.Exporter, *otlpmetrichttp.Exporter, error) {
	endpoint, insecure := normalizeEndpoint(rawEndpoint)

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, err
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, nil, err
	}
	return traceExporter, metricExporter, nil
}

// normalizeEndpoint strips the scheme, which the OTLP HTTP exporters do not accept.
// Endpoints without a scheme are treated as plaintext.
func normalizeEndpoint(raw string) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimPrefix(raw, "https://"), false
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimPrefix(raw, "http://"), true
	default:
		return raw, true
	}
}
