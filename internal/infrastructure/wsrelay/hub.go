// Package wsrelay carries relay frames over WebSocket connections.
package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/domain/relay"
	"github.com/janhq/companion-relay/internal/utils/idgen"
)

// ErrHubClosed is returned by Serve once Shutdown has begun.
var ErrHubClosed = errors.New("relay hub closed")

// Config holds WebSocket transport settings.
type Config struct {
	NodeID       string
	WriteTimeout time.Duration
	PingInterval time.Duration
	IdleTimeout  time.Duration
	ReadLimit    int64
}

// FrameHandler processes one raw inbound payload.
type FrameHandler interface {
	HandlePayload(ctx context.Context, origin relay.Origin, payload []byte) relay.Outcome
}

// Hub owns the WebSocket connections of this node. It implements relay.Sender
// and the sweeper's Terminator.
type Hub struct {
	cfg         Config
	connections connection.Service
	upgrader    websocket.Upgrader
	log         zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client

	handlers sync.WaitGroup
	closing  atomic.Bool
}

// NewHub creates a hub.
func NewHub(cfg Config, connections connection.Service, log zerolog.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.IdleTimeout < cfg.PingInterval*2 {
		cfg.IdleTimeout = cfg.PingInterval * 2
	}
	return &Hub{
		cfg:         cfg,
		connections: connections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.With().Str("component", "ws-hub").Logger(),
		clients: make(map[string]*client),
	}
}

// client is one upgraded socket. All writes go through writeMu.
type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func (c *client) close(code int, reason string, timeout time.Duration) {
	c.once.Do(func() {
		c.cancel()
		deadline := time.Now().Add(timeout)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

// Serve upgrades the request and runs the read loop until the socket closes.
// userID is the authenticated subject, or "" when auth is disabled.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, handler FrameHandler) error {
	if h.closing.Load() {
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	id, err := idgen.NewConnectionID()
	if err != nil {
		http.Error(w, "failed to allocate connection", http.StatusInternalServerError)
		return err
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return fmt.Errorf("upgrade: %w", err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &client{id: id, conn: ws, ctx: ctx, cancel: cancel}

	conn := &connection.Connection{
		ID:         id,
		UserID:     userID,
		NodeID:     h.cfg.NodeID,
		RemoteAddr: r.RemoteAddr,
	}
	if err := h.connections.OnConnect(ctx, conn); err != nil {
		h.log.Warn().Err(err).Str("connection_id", id).Msg("connection registration failed")
		c.close(websocket.CloseInternalServerErr, "registration failed", h.cfg.WriteTimeout)
		return err
	}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		c.close(websocket.CloseNormalClosure, "", h.cfg.WriteTimeout)
		h.connections.OnDisconnect(context.Background(), id)
	}()

	go h.pingLoop(c)
	h.readLoop(c, relay.Origin{ConnectionID: id, AuthenticatedUserID: userID}, handler)
	return nil
}

func (h *Hub) readLoop(c *client, origin relay.Origin, handler FrameHandler) {
	c.conn.SetReadLimit(h.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Str("connection_id", c.id).Msg("read loop ended")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		h.mu.RLock()
		if h.closing.Load() {
			h.mu.RUnlock()
			handler.HandlePayload(c.ctx, origin, payload)
			continue
		}
		h.handlers.Add(1)
		h.mu.RUnlock()

		go func() {
			defer h.handlers.Done()
			handler.HandlePayload(c.ctx, origin, payload)
		}()
	}
}

func (h *Hub) pingLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				h.log.Debug().Err(err).Str("connection_id", c.id).Msg("ping failed, closing connection")
				c.close(websocket.CloseGoingAway, "ping failed", h.cfg.WriteTimeout)
				return
			}
		}
	}
}

// Send writes frame to the connection. A write failure closes the connection.
func (h *Hub) Send(_ context.Context, connectionID string, frame relay.Frame) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", relay.ErrDeliveryFailed, connection.ErrConnectionClosed)
	}
	if c.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", relay.ErrDeliveryFailed, connection.ErrConnectionClosed)
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()

	if err != nil {
		c.close(websocket.CloseInternalServerErr, "write failed", h.cfg.WriteTimeout)
		return fmt.Errorf("%w: %w", relay.ErrDeliveryFailed, err)
	}
	return nil
}

// Disconnect closes a connection owned by this node.
func (h *Hub) Disconnect(_ context.Context, connectionID string, reason string) {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.log.Info().Str("connection_id", connectionID).Str("reason", reason).Msg("closing connection")
	c.close(websocket.CloseNormalClosure, reason, h.cfg.WriteTimeout)
}

// Count returns the number of sockets open on this node.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown refuses new sockets, waits for running frame handlers and closes every socket.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing.Store(true)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.handlers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down", h.cfg.WriteTimeout)
	}
	h.log.Info().Int("closed", len(clients)).Msg("relay hub shut down")
	return err
}
