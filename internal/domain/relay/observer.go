package relay

import (
	"context"
	"time"
)

// ExchangeInfo describes an exchange to observers.
type ExchangeInfo struct {
	ConnectionID   string
	ConversationID string
	UserID         string
	StartedAt      time.Time
}

// Outcome summarises a finished exchange.
type Outcome struct {
	State             State
	Kind              ErrorKind
	Err               error
	MessageID         string
	Tokens            int
	TokensApproximate bool
	Increments        int
	Detached          bool
	Duration          time.Duration
}

// Succeeded reports whether the exchange reached StateCompleted.
func (o Outcome) Succeeded() bool {
	return o.State == StateCompleted
}

// Observer receives exchange lifecycle events for metrics and tracing.
type Observer interface {
	ExchangeStarted(ctx context.Context, info ExchangeInfo) context.Context
	StateChanged(ctx context.Context, from, to State)
	FirstIncrement(ctx context.Context, latency time.Duration)
	DeliveryFailed(ctx context.Context, state State, err error)
	ExchangeFinished(ctx context.Context, outcome Outcome)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ExchangeStarted(ctx context.Context, _ ExchangeInfo) context.Context { return ctx }
func (NopObserver) StateChanged(context.Context, State, State)                          {}
func (NopObserver) FirstIncrement(context.Context, time.Duration)                       {}
func (NopObserver) DeliveryFailed(context.Context, State, error)                        {}
func (NopObserver) ExchangeFinished(context.Context, Outcome)                           {}
