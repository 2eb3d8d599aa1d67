package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/infrastructure/registry"
)

// echoHandler replies to every payload with a token frame carrying the payload.
type echoHandler struct {
	hub *Hub

	mu      sync.Mutex
	origins []relay.Origin
}

func (e *echoHandler) HandlePayload(ctx context.Context, origin relay.Origin, payload []byte) relay.Outcome {
	e.mu.Lock()
	e.origins = append(e.origins, origin)
	e.mu.Unlock()

	_ = e.hub.Send(ctx, origin.ConnectionID, relay.TokenFrame(string(payload)))
	return relay.Outcome{State: relay.StateCompleted}
}

func newTestHub(t *testing.T) (*Hub, connection.Service, *echoHandler, *httptest.Server) {
	t.Helper()
	reg, err := registry.NewMemoryRegistry(16)
	require.NoError(t, err)
	connections := connection.NewService(reg, connection.Hooks{}, zerolog.Nop())

	hub := NewHub(Config{
		NodeID:       "node-a",
		WriteTimeout: time.Second,
		PingInterval: time.Second,
		IdleTimeout:  5 * time.Second,
		ReadLimit:    4096,
	}, connections, zerolog.Nop())
	handler := &echoHandler{hub: hub}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "u1", handler)
	}))
	t.Cleanup(server.Close)
	return hub, connections, handler, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestHubRoundTrip(t *testing.T) {
	hub, connections, handler, server := newTestHub(t)
	ws := dial(t, server)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hello")))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var frame relay.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, relay.FrameToken, frame.Type)
	assert.Equal(t, "hello", frame.Content)

	handler.mu.Lock()
	require.Len(t, handler.origins, 1)
	origin := handler.origins[0]
	handler.mu.Unlock()
	assert.Equal(t, "u1", origin.AuthenticatedUserID)

	conn, err := connections.Get(context.Background(), origin.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, "node-a", conn.NodeID)
	assert.Equal(t, "u1", conn.UserID)
}

func TestHubUnregistersOnClientClose(t *testing.T) {
	hub, connections, _, server := newTestHub(t)
	ws := dial(t, server)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		n, err := connections.Count(context.Background())
		return err == nil && n == 0 && hub.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendToUnknownConnection(t *testing.T) {
	hub, _, _, _ := newTestHub(t)

	err := hub.Send(context.Background(), "conn_missing", relay.TokenFrame("x"))
	assert.True(t, errors.Is(err, relay.ErrDeliveryFailed))
}

func TestHubDisconnectClosesSocket(t *testing.T) {
	hub, _, handler, server := newTestHub(t)
	ws := dial(t, server)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	require.NoError(t, err)

	handler.mu.Lock()
	id := handler.origins[0].ConnectionID
	handler.mu.Unlock()

	hub.Disconnect(context.Background(), id, "max lifetime exceeded")

	_, _, err = ws.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, "max lifetime exceeded", closeErr.Text)

	err = hub.Send(context.Background(), id, relay.TokenFrame("late"))
	assert.True(t, errors.Is(err, relay.ErrDeliveryFailed))
}

func TestHubShutdownRefusesNewSockets(t *testing.T) {
	hub, _, _, server := newTestHub(t)
	require.NoError(t, hub.Shutdown(context.Background()))

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
