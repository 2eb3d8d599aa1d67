package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/infrastructure/metrics"
	"github.com/janhq/companion-relay/internal/infrastructure/telemetry"
)

// RelayObserver records exchange lifecycle events as Prometheus metrics and OpenTelemetry spans.
type RelayObserver struct {
	sanitizer *telemetry.Sanitizer
}

// NewRelayObserver creates an observer. User identifiers pass through sanitizer before reaching spans.
func NewRelayObserver(sanitizer *telemetry.Sanitizer) *RelayObserver {
	return &RelayObserver{sanitizer: sanitizer}
}

var _ relay.Observer = (*RelayObserver)(nil)

func (o *RelayObserver) ExchangeStarted(ctx context.Context, info relay.ExchangeInfo) context.Context {
	ctx, _ = StartSpan(ctx, "relay.exchange",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(info.StartedAt),
		trace.WithAttributes(
			attribute.String("relay.connection_id", info.ConnectionID),
			attribute.String("relay.conversation_id", info.ConversationID),
			attribute.String("relay.user_id", o.sanitizer.SanitizeUserID(info.UserID)),
		),
	)
	return ctx
}

func (o *RelayObserver) StateChanged(ctx context.Context, from, to relay.State) {
	metrics.RecordStateTransition(from.String(), to.String())
	AddSpanEvent(ctx, "state."+to.String(), attribute.String("from", from.String()))
}

func (o *RelayObserver) FirstIncrement(ctx context.Context, latency time.Duration) {
	metrics.FirstTokenLatency.Observe(latency.Seconds())
	AddSpanEvent(ctx, "first_token", attribute.Int64("latency_ms", latency.Milliseconds()))
}

func (o *RelayObserver) DeliveryFailed(ctx context.Context, state relay.State, err error) {
	metrics.RecordDeliveryFailure(state.String())
	AddSpanEvent(ctx, "delivery_failed", attribute.String("state", state.String()))
}

func (o *RelayObserver) ExchangeFinished(ctx context.Context, outcome relay.Outcome) {
	result, kind := "completed", "none"
	if !outcome.Succeeded() {
		result, kind = "failed", string(outcome.Kind)
	}
	metrics.RecordExchange(result, kind, outcome.Duration)
	if outcome.Succeeded() {
		metrics.RecordTokens(outcome.Tokens, outcome.TokensApproximate)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("relay.state", outcome.State.String()),
		attribute.Int("relay.increments", outcome.Increments),
		attribute.Bool("relay.detached", outcome.Detached),
	)
	if outcome.Succeeded() {
		span.SetAttributes(
			attribute.String("relay.message_id", outcome.MessageID),
			attribute.Int("relay.tokens", outcome.Tokens),
			attribute.Bool("relay.tokens_approximate", outcome.TokensApproximate),
		)
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("relay.error_kind", kind))
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
		}
		span.SetStatus(codes.Error, kind)
	}
	span.End()
}
