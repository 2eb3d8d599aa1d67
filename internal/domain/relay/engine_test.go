package relay_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/infrastructure/store"
)

// countingStore wraps the memory store and counts every call.
type countingStore struct {
	*store.MemoryStore
	calls atomic.Int64
}

func (s *countingStore) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error) {
	s.calls.Add(1)
	return s.MemoryStore.GetConversation(ctx, userID, conversationID)
}

func (s *countingStore) GetCharacter(ctx context.Context, userID, characterID string) (*character.Character, error) {
	s.calls.Add(1)
	return s.MemoryStore.GetCharacter(ctx, userID, characterID)
}

func (s *countingStore) AppendMessage(ctx context.Context, msg conversation.NewMessage) (*conversation.Message, error) {
	s.calls.Add(1)
	return s.MemoryStore.AppendMessage(ctx, msg)
}

func (s *countingStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error) {
	s.calls.Add(1)
	return s.MemoryStore.RecentMessages(ctx, conversationID, limit)
}

func (s *countingStore) TouchConversation(ctx context.Context, userID, conversationID string) error {
	s.calls.Add(1)
	return s.MemoryStore.TouchConversation(ctx, userID, conversationID)
}

func (s *countingStore) IncrementCharacterUsage(ctx context.Context, userID, characterID string) error {
	s.calls.Add(1)
	return s.MemoryStore.IncrementCharacterUsage(ctx, userID, characterID)
}

// fakeProvider streams fixed increments unless StreamFunc is set.
type fakeProvider struct {
	Increments []string
	Tokens     int
	Model      string
	StreamFunc func(ctx context.Context, messages []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error)

	mu       sync.Mutex
	received [][]relay.ContextMessage
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, messages []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
	p.mu.Lock()
	p.received = append(p.received, messages)
	p.mu.Unlock()

	if p.StreamFunc != nil {
		return p.StreamFunc(ctx, messages, onIncrement)
	}
	var full strings.Builder
	for _, inc := range p.Increments {
		onIncrement(inc)
		full.WriteString(inc)
	}
	return &relay.Completion{Content: full.String(), Tokens: p.Tokens, Model: p.Model}, nil
}

func (p *fakeProvider) lastWindow() []relay.ContextMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.received) == 0 {
		return nil
	}
	return p.received[len(p.received)-1]
}

// recordingSender captures frames per connection. FailAfter > 0 fails every send after that many frames.
type recordingSender struct {
	mu        sync.Mutex
	frames    map[string][]relay.Frame
	attempts  int
	FailAfter int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][]relay.Frame)}
}

func (s *recordingSender) Send(ctx context.Context, connectionID string, frame relay.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.FailAfter > 0 && s.attempts > s.FailAfter {
		return fmt.Errorf("connection %s: %w", connectionID, relay.ErrDeliveryFailed)
	}
	s.frames[connectionID] = append(s.frames[connectionID], frame)
	return nil
}

func (s *recordingSender) Frames(connectionID string) []relay.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Frame(nil), s.frames[connectionID]...)
}

func (s *recordingSender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

type fixture struct {
	store    *countingStore
	provider *fakeProvider
	sender   *recordingSender
	engine   *relay.Engine
	conv     *conversation.Conversation
	char     *character.Character
}

func newFixture(t *testing.T, cfg relay.EngineConfig, opts ...relay.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemoryStore(zerolog.Nop())
	char := &character.Character{ID: "rin", UserID: "u1", Name: "Rin", SystemPrompt: "You are Rin."}
	require.NoError(t, mem.CreateCharacter(ctx, char))
	conv := &conversation.Conversation{ID: "c1", UserID: "u1", CharacterID: "rin", Title: "chat", CreatedAt: time.Now()}
	require.NoError(t, mem.CreateConversation(ctx, conv))

	f := &fixture{
		store:    &countingStore{MemoryStore: mem},
		provider: &fakeProvider{Increments: []string{"Hi", " there", "!"}, Tokens: 7, Model: "llama-3.3-70b-versatile"},
		sender:   newRecordingSender(),
		conv:     conv,
		char:     char,
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	f.engine = relay.NewEngine(cfg, f.store, f.provider, f.sender, zerolog.Nop(), opts...)
	return f
}

func (f *fixture) messages(t *testing.T) []*conversation.Message {
	t.Helper()
	newestFirst, err := f.store.MemoryStore.RecentMessages(context.Background(), f.conv.ID, 1000)
	require.NoError(t, err)
	out := make([]*conversation.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out
}

func tokenText(frames []relay.Frame) string {
	var b strings.Builder
	for _, fr := range frames {
		if fr.Type == relay.FrameToken {
			b.WriteString(fr.Content)
		}
	}
	return b.String()
}

func TestHandleStreamsAndPersistsExchange(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	origin := relay.Origin{ConnectionID: "conn-1"}

	outcome := f.engine.Handle(context.Background(), origin, relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	require.True(t, outcome.Succeeded(), "outcome: %+v", outcome)
	frames := f.sender.Frames("conn-1")
	require.Len(t, frames, 4)
	assert.Equal(t, "Hi there!", tokenText(frames))

	last := frames[len(frames)-1]
	assert.Equal(t, relay.FrameDone, last.Type)
	assert.NotEmpty(t, last.MessageID)
	assert.Equal(t, 7, last.Tokens)

	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there!", msgs[1].Content)
	assert.Equal(t, last.MessageID, msgs[1].ID)
	require.NotNil(t, msgs[1].Tokens)
	assert.Equal(t, 7, *msgs[1].Tokens)
	assert.Equal(t, "llama-3.3-70b-versatile", msgs[1].Model)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))

	window := f.provider.lastWindow()
	require.Len(t, window, 2)
	assert.Equal(t, relay.ContextMessage{Role: conversation.RoleSystem, Content: "You are Rin."}, window[0])
	assert.Equal(t, relay.ContextMessage{Role: conversation.RoleUser, Content: "hello"}, window[1])

	conv, err := f.store.MemoryStore.GetConversation(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
	char, err := f.store.MemoryStore.GetCharacter(context.Background(), "u1", "rin")
	require.NoError(t, err)
	assert.Equal(t, 1, char.UsageCount)
}

func TestHandleUnknownConversation(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "missing", Content: "hello", UserID: "u1"})

	assert.Equal(t, relay.StateFailed, outcome.State)
	assert.Equal(t, relay.KindNotFound, outcome.Kind)
	frames := f.sender.Frames("conn-1")
	require.Len(t, frames, 1)
	assert.Equal(t, relay.ErrorFrame("Conversation not found"), frames[0])
	assert.Empty(t, f.messages(t))
}

func TestHandleConversationOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u2"})

	assert.Equal(t, relay.KindNotFound, outcome.Kind)
	assert.Empty(t, f.messages(t))
}

func TestHandleMissingFieldsMakesNoStoreCalls(t *testing.T) {
	cases := []relay.InboundFrame{
		{ConversationID: "c1", Content: "hello"},
		{ConversationID: "c1", UserID: "u1"},
		{Content: "hello", UserID: "u1"},
		{},
	}
	for i, frame := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			f := newFixture(t, relay.EngineConfig{})

			outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"}, frame)

			assert.Equal(t, relay.KindInvalidRequest, outcome.Kind)
			assert.Equal(t, int64(0), f.store.calls.Load())
			frames := f.sender.Frames("conn-1")
			require.Len(t, frames, 1)
			assert.Equal(t, relay.ErrorFrame("Missing required fields: conversationId, content, userId"), frames[0])
		})
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})

	outcome := f.engine.HandlePayload(context.Background(), relay.Origin{ConnectionID: "conn-1"}, []byte("{not json"))

	assert.Equal(t, relay.KindInvalidRequest, outcome.Kind)
	assert.Equal(t, int64(0), f.store.calls.Load())
}

func TestHandleRejectsOversizedContent(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{MaxContentLength: 5})

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "too long", UserID: "u1"})

	assert.Equal(t, relay.KindInvalidRequest, outcome.Kind)
	assert.Equal(t, int64(0), f.store.calls.Load())
}

func TestHandleRejectsUserMismatch(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1", AuthenticatedUserID: "u9"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	assert.Equal(t, relay.KindInvalidRequest, outcome.Kind)
	assert.Equal(t, int64(0), f.store.calls.Load())
}

func TestHandleProviderFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	f.provider.StreamFunc = func(ctx context.Context, _ []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
		onIncrement("partial")
		return nil, errors.New("upstream exploded")
	}

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	assert.Equal(t, relay.KindUpstreamFailure, outcome.Kind)
	msgs := f.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)

	frames := f.sender.Frames("conn-1")
	require.Len(t, frames, 2)
	assert.Equal(t, relay.FrameToken, frames[0].Type)
	assert.Equal(t, relay.ErrorFrame("Failed to generate response"), frames[1])

	conv, err := f.store.MemoryStore.GetConversation(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.MessageCount)
}

func TestHandleZeroIncrementsStillFinalizes(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	f.provider.Increments = nil
	f.provider.Tokens = 0

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	require.True(t, outcome.Succeeded())
	assert.Equal(t, 0, outcome.Tokens)
	assert.True(t, outcome.TokensApproximate)
	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[1].Content)
	frames := f.sender.Frames("conn-1")
	require.Len(t, frames, 1)
	assert.Equal(t, relay.FrameDone, frames[0].Type)
}

func TestHandleApproximatesTokensWithoutUsage(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	f.provider.Increments = []string{"one two ", "three"}
	f.provider.Tokens = 0

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	require.True(t, outcome.Succeeded())
	assert.Equal(t, 4, outcome.Tokens)
	assert.True(t, outcome.TokensApproximate)
}

func TestHandleDeliveryFailureDetachesButCompletes(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	f.sender.FailAfter = 1

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	require.True(t, outcome.Succeeded())
	assert.True(t, outcome.Detached)
	// first token delivered, second attempt fails, nothing else is attempted
	assert.Equal(t, 2, f.sender.Attempts())
	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi there!", msgs[1].Content)
}

func TestHandleCancelPolicyAbandonsExchange(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{DisconnectPolicy: relay.DisconnectCancel})
	connCtx, disconnect := context.WithCancel(context.Background())
	f.provider.StreamFunc = func(ctx context.Context, _ []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
		onIncrement("Hi")
		disconnect()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	outcome := f.engine.Handle(connCtx, relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	assert.Equal(t, relay.KindDeliveryFailure, outcome.Kind)
	require.Len(t, f.messages(t), 1)
	for _, fr := range f.sender.Frames("conn-1") {
		assert.NotEqual(t, relay.FrameError, fr.Type)
	}
}

func TestHandleContinuePolicyOutlivesConnection(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{DisconnectPolicy: relay.DisconnectContinue})
	connCtx, disconnect := context.WithCancel(context.Background())
	f.provider.StreamFunc = func(ctx context.Context, _ []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
		onIncrement("Hi")
		disconnect()
		require.NoError(t, ctx.Err())
		onIncrement(" again")
		return &relay.Completion{Content: "Hi again", Tokens: 2}, nil
	}

	outcome := f.engine.Handle(connCtx, relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	require.True(t, outcome.Succeeded())
	msgs := f.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi again", msgs[1].Content)
}

func TestHandleBoundsContextWindow(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{HistoryLimit: 3})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := f.store.MemoryStore.AppendMessage(ctx, conversation.NewMessage{
			ConversationID: "c1", Role: conversation.RoleUser, Content: fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}

	outcome := f.engine.Handle(ctx, relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "latest", UserID: "u1"})

	require.True(t, outcome.Succeeded())
	window := f.provider.lastWindow()
	require.Len(t, window, 4)
	assert.Equal(t, conversation.RoleSystem, window[0].Role)
	assert.Equal(t, []string{"m8", "m9", "latest"}, []string{window[1].Content, window[2].Content, window[3].Content})
}

func TestHandleBackToBackFrames(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []relay.Option
	}{
		{name: "direct"},
		{name: "queue", opts: []relay.Option{relay.WithSerializer(relay.NewQueue(time.Second))}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, relay.EngineConfig{}, tc.opts...)
			origin := relay.Origin{ConnectionID: "conn-1"}

			var wg sync.WaitGroup
			outcomes := make([]relay.Outcome, 2)
			for i, content := range []string{"first", "second"} {
				wg.Add(1)
				go func(i int, content string) {
					defer wg.Done()
					outcomes[i] = f.engine.Handle(context.Background(), origin,
						relay.InboundFrame{ConversationID: "c1", Content: content, UserID: "u1"})
				}(i, content)
			}

			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("exchanges did not complete")
			}

			for _, o := range outcomes {
				assert.True(t, o.Succeeded())
			}
			var users []string
			for _, m := range f.messages(t) {
				if m.Role == conversation.RoleUser {
					users = append(users, m.Content)
				}
			}
			assert.ElementsMatch(t, []string{"first", "second"}, users)
			assert.Len(t, f.messages(t), 4)
		})
	}
}

func TestQueueSerializesPerConversation(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{}, relay.WithSerializer(relay.NewQueue(time.Second)))
	var active, maxActive atomic.Int32
	f.provider.StreamFunc = func(ctx context.Context, _ []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
		n := active.Add(1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		onIncrement("ok")
		active.Add(-1)
		return &relay.Completion{Content: "ok", Tokens: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
				relay.InboundFrame{ConversationID: "c1", Content: fmt.Sprintf("m%d", i), UserID: "u1"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	msgs := f.messages(t)
	require.Len(t, msgs, 10)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, conversation.RoleUser, msgs[i].Role)
		assert.Equal(t, conversation.RoleAssistant, msgs[i+1].Role)
	}
}

func TestDrainRejectsNewExchanges(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	require.NoError(t, f.engine.Drain(context.Background()))

	outcome := f.engine.Handle(context.Background(), relay.Origin{ConnectionID: "conn-1"},
		relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})

	assert.Equal(t, relay.KindInternal, outcome.Kind)
	assert.Equal(t, int64(0), f.store.calls.Load())
}

func TestDrainWaitsForEveryAdmittedExchange(t *testing.T) {
	f := newFixture(t, relay.EngineConfig{})
	var started, completed atomic.Int64
	f.provider.StreamFunc = func(ctx context.Context, _ []relay.ContextMessage, onIncrement func(string)) (*relay.Completion, error) {
		started.Add(1)
		defer completed.Add(1)
		time.Sleep(10 * time.Millisecond)
		onIncrement("ok")
		return &relay.Completion{Content: "ok", Tokens: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * time.Millisecond)
			f.engine.Handle(context.Background(), relay.Origin{ConnectionID: fmt.Sprintf("conn-%d", i)},
				relay.InboundFrame{ConversationID: "c1", Content: "hello", UserID: "u1"})
		}(i)
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.engine.Drain(context.Background()))
	assert.Equal(t, started.Load(), completed.Load(), "drain returned with exchanges still streaming")

	wg.Wait()
	assert.Equal(t, started.Load(), completed.Load())
}
