package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

const (
	msgMissingFields        = "Missing required fields: conversationId, content, userId"
	msgConversationNotFound = "Conversation not found"
	msgCharacterNotFound    = "Character not found"
	msgUpstreamFailure      = "Failed to generate response"
	msgUserMismatch         = "userId does not match the authenticated user"
	msgShuttingDown         = "Relay is shutting down"
)

// EngineConfig holds the relay policies.
type EngineConfig struct {
	HistoryLimit     int
	MaxContentLength int
	DisconnectPolicy DisconnectPolicy
}

// Engine runs one state machine per inbound chat frame.
type Engine struct {
	cfg        EngineConfig
	store      Store
	provider   CompletionProvider
	sender     Sender
	serializer Serializer
	observer   Observer
	validate   *validator.Validate
	log        zerolog.Logger
	now        func() time.Time

	// mu orders admission against Drain so no Add races the final Wait.
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithSerializer sets the per-conversation ordering policy. Defaults to Direct.
func WithSerializer(s Serializer) Option {
	return func(e *Engine) {
		if s != nil {
			e.serializer = s
		}
	}
}

// WithObserver attaches metrics and tracing hooks.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires the relay engine.
func NewEngine(cfg EngineConfig, store Store, provider CompletionProvider, sender Sender, log zerolog.Logger, opts ...Option) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.DisconnectPolicy == "" {
		cfg.DisconnectPolicy = DisconnectContinue
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		provider:   provider,
		sender:     sender,
		serializer: Direct{},
		observer:   NopObserver{},
		validate:   validator.New(),
		log:        log.With().Str("component", "relay-engine").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle runs one exchange for frame and returns its outcome.
// connCtx is the lifetime of the originating connection.
func (e *Engine) Handle(connCtx context.Context, origin Origin, frame InboundFrame) Outcome {
	admitted := e.admit()
	if admitted {
		defer e.inflight.Done()
	}

	x := &exchange{
		rejected:  !admitted,
		engine:    e,
		origin:    origin,
		frame:     frame,
		state:     StateValidating,
		startedAt: e.now(),
		log: e.log.With().
			Str("connection_id", origin.ConnectionID).
			Str("conversation_id", frame.ConversationID).
			Logger(),
	}
	x.ctx = e.observer.ExchangeStarted(e.cfg.DisconnectPolicy.exchangeContext(connCtx), ExchangeInfo{
		ConnectionID:   origin.ConnectionID,
		ConversationID: frame.ConversationID,
		UserID:         frame.UserID,
		StartedAt:      x.startedAt,
	})

	x.run()

	outcome := x.outcome()
	e.observer.ExchangeFinished(x.ctx, outcome)
	return outcome
}

func (e *Engine) admit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.inflight.Add(1)
	return true
}

// Drain stops accepting exchanges and waits for in-flight ones to finish.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type exchange struct {
	engine *Engine
	origin Origin
	frame  InboundFrame
	ctx    context.Context
	log    zerolog.Logger

	rejected bool

	state      State
	err        *Error
	detached   bool
	increments int
	buf        strings.Builder
	startedAt  time.Time

	conv      *conversation.Conversation
	char      *character.Character
	messageID string
	tokens    int
	approx    bool
}

func (x *exchange) run() {
	if x.rejected {
		x.fail(NewError(KindInternal, x.state, msgShuttingDown, nil))
		return
	}
	if err := x.validateFrame(); err != nil {
		x.fail(err)
		return
	}

	err := x.engine.serializer.Do(x.ctx, x.frame.ConversationID, func(ctx context.Context) {
		x.ctx = ctx
		if relayErr := x.process(); relayErr != nil {
			x.fail(relayErr)
		}
	})
	if err != nil {
		x.fail(NewError(KindInternal, x.state, defaultFailureMessage, err))
	}
}

func (x *exchange) validateFrame() *Error {
	if err := x.engine.validate.Struct(x.frame); err != nil {
		return NewError(KindInvalidRequest, StateValidating, msgMissingFields, err)
	}
	if limit := x.engine.cfg.MaxContentLength; limit > 0 && utf8.RuneCountInString(x.frame.Content) > limit {
		return NewError(KindInvalidRequest, StateValidating,
			fmt.Sprintf("Message content exceeds %d characters", limit), nil)
	}
	if auth := x.origin.AuthenticatedUserID; auth != "" && auth != x.frame.UserID {
		return NewError(KindInvalidRequest, StateValidating, msgUserMismatch, nil)
	}
	return nil
}

func (x *exchange) process() *Error {
	store := x.engine.store

	x.transition(StateLoading)
	conv, err := store.GetConversation(x.ctx, x.frame.UserID, x.frame.ConversationID)
	if err != nil {
		return x.storeError(err, msgConversationNotFound, "load conversation")
	}
	x.conv = conv

	char, err := store.GetCharacter(x.ctx, conv.UserID, conv.CharacterID)
	if err != nil {
		return x.storeError(err, msgCharacterNotFound, "load character")
	}
	x.char = char

	x.transition(StateRecordingInput)
	if _, err := store.AppendMessage(x.ctx, conversation.NewMessage{
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        x.frame.Content,
	}); err != nil {
		return x.storeError(err, "", "record user message")
	}

	x.transition(StateAssemblingContext)
	recent, err := store.RecentMessages(x.ctx, conv.ID, x.engine.cfg.HistoryLimit)
	if err != nil {
		return x.storeError(err, "", "load recent messages")
	}
	window := BuildContextWindow(char.SystemPrompt, recent, x.engine.cfg.HistoryLimit)

	x.transition(StateStreaming)
	completion, err := x.engine.provider.StreamCompletion(x.ctx, window, x.onIncrement)
	if err != nil {
		if x.ctx.Err() != nil {
			x.detached = true
			return NewError(KindDeliveryFailure, x.state, "connection closed during generation", err)
		}
		return NewError(KindUpstreamFailure, x.state, msgUpstreamFailure, err)
	}

	content := x.buf.String()
	x.tokens, x.approx = tokenCount(completion, content)
	var model string
	if completion != nil {
		model = completion.Model
	}

	x.transition(StateRecordingOutput)
	tokens := x.tokens
	assistant, err := store.AppendMessage(x.ctx, conversation.NewMessage{
		ConversationID: conv.ID,
		Role:           conversation.RoleAssistant,
		Content:        content,
		Tokens:         &tokens,
		Model:          model,
	})
	if err != nil {
		return x.storeError(err, "", "record assistant message")
	}
	x.messageID = assistant.ID

	x.transition(StateFinalizing)
	if err := store.TouchConversation(x.ctx, conv.UserID, conv.ID); err != nil {
		return x.storeError(err, "", "touch conversation")
	}
	if err := store.IncrementCharacterUsage(x.ctx, char.UserID, char.ID); err != nil {
		return x.storeError(err, "", "increment character usage")
	}
	x.send(DoneFrame(assistant.ID, x.tokens))

	x.transition(StateCompleted)
	x.log.Info().
		Str("message_id", assistant.ID).
		Int("tokens", x.tokens).
		Bool("tokens_approximate", x.approx).
		Int("increments", x.increments).
		Bool("detached", x.detached).
		Msg("exchange completed")
	return nil
}

func (x *exchange) onIncrement(text string) {
	if text == "" {
		return
	}
	if x.increments == 0 {
		x.engine.observer.FirstIncrement(x.ctx, x.engine.now().Sub(x.startedAt))
	}
	x.increments++
	x.buf.WriteString(text)
	x.send(TokenFrame(text))
}

// send delivers a frame unless the exchange is detached. The first failure detaches it.
func (x *exchange) send(frame Frame) {
	if x.detached {
		return
	}
	if err := x.engine.sender.Send(x.ctx, x.origin.ConnectionID, frame); err != nil {
		x.detached = true
		x.engine.observer.DeliveryFailed(x.ctx, x.state, err)
		x.log.Warn().Err(err).Str("state", x.state.String()).Str("frame", string(frame.Type)).
			Msg("frame delivery failed, exchange detached from connection")
	}
}

func (x *exchange) transition(to State) {
	if !CanTransition(x.state, to) {
		x.log.Error().Str("from", x.state.String()).Str("to", to.String()).Msg("illegal state transition")
		return
	}
	from := x.state
	x.state = to
	x.engine.observer.StateChanged(x.ctx, from, to)
}

func (x *exchange) fail(err *Error) {
	if x.state.Terminal() {
		return
	}
	x.err = err
	failedIn := x.state
	x.transition(StateFailed)

	var event *zerolog.Event
	switch err.Kind {
	case KindUpstreamFailure, KindInternal:
		event = x.log.Error()
	case KindInvalidRequest, KindNotFound, KindDeliveryFailure:
		event = x.log.Warn()
	default:
		event = x.log.Warn()
	}
	event.Err(err.Err).
		Str("kind", string(err.Kind)).
		Str("state", failedIn.String()).
		Bool("user_message_durable", UserMessageDurable(failedIn)).
		Msg(err.Message)

	if err.Kind.EmitsFrame() {
		x.send(FrameFor(err))
	}
}

func (x *exchange) storeError(err error, notFoundMessage, op string) *Error {
	if notFoundMessage != "" && isNotFound(err) {
		return NewError(KindNotFound, x.state, notFoundMessage, err)
	}
	return NewError(KindInternal, x.state, defaultFailureMessage, fmt.Errorf("%s: %w", op, err))
}

func (x *exchange) outcome() Outcome {
	o := Outcome{
		State:             x.state,
		MessageID:         x.messageID,
		Tokens:            x.tokens,
		TokensApproximate: x.approx,
		Increments:        x.increments,
		Detached:          x.detached,
		Duration:          x.engine.now().Sub(x.startedAt),
	}
	if x.err != nil {
		o.Kind = x.err.Kind
		o.Err = x.err
	}
	return o
}

func isNotFound(err error) bool {
	return errors.Is(err, conversation.ErrConversationNotFound) ||
		errors.Is(err, character.ErrCharacterNotFound) ||
		platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound)
}

func tokenCount(completion *Completion, content string) (int, bool) {
	if completion != nil && completion.Tokens > 0 {
		return completion.Tokens, completion.TokensApproximate
	}
	return ApproximateTokens(content), true
}

// HandlePayload decodes a raw client payload and runs it. Malformed payloads fail validation.
func (e *Engine) HandlePayload(connCtx context.Context, origin Origin, payload []byte) Outcome {
	frame, err := DecodeInbound(payload)
	if err != nil {
		e.log.Debug().Err(err).Str("connection_id", origin.ConnectionID).Msg("malformed chat frame")
		frame = InboundFrame{}
	}
	return e.Handle(connCtx, origin, frame)
}
