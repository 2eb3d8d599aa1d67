package connection

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Service is the connection lifecycle used by transports.
type Service interface {
	OnConnect(ctx context.Context, conn *Connection) error
	OnDisconnect(ctx context.Context, id string)
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context) ([]*Connection, error)
	Count(ctx context.Context) (int, error)
}

// Hooks observe lifecycle events.
type Hooks struct {
	Connected    func(conn *Connection)
	Disconnected func(conn *Connection, lifetime time.Duration)
}

type service struct {
	registry Registry
	hooks    Hooks
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates the connection service.
func NewService(registry Registry, hooks Hooks, log zerolog.Logger) Service {
	return &service{
		registry: registry,
		hooks:    hooks,
		log:      log.With().Str("component", "connection-service").Logger(),
		now:      time.Now,
	}
}

func (s *service) OnConnect(ctx context.Context, conn *Connection) error {
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = s.now()
	}
	if err := s.registry.Register(ctx, conn); err != nil {
		s.log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to register connection")
		return err
	}

	s.log.Info().
		Str("connection_id", conn.ID).
		Str("node_id", conn.NodeID).
		Str("remote_addr", conn.RemoteAddr).
		Msg("connection opened")
	if s.hooks.Connected != nil {
		s.hooks.Connected(conn)
	}
	return nil
}

// OnDisconnect removes id from the registry. It never fails; registry errors are logged.
func (s *service) OnDisconnect(ctx context.Context, id string) {
	conn, _ := s.registry.Get(ctx, id)

	removed, err := s.registry.Unregister(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("connection_id", id).Msg("failed to unregister connection")
		return
	}
	if !removed {
		s.log.Debug().Str("connection_id", id).Msg("disconnect for unknown connection")
		return
	}

	var lifetime time.Duration
	if conn != nil {
		lifetime = conn.Age(s.now())
	}
	s.log.Info().
		Str("connection_id", id).
		Dur("lifetime", lifetime).
		Msg("connection closed")
	if s.hooks.Disconnected != nil && conn != nil {
		s.hooks.Disconnected(conn, lifetime)
	}
}

func (s *service) Get(ctx context.Context, id string) (*Connection, error) {
	return s.registry.Get(ctx, id)
}

func (s *service) List(ctx context.Context) ([]*Connection, error) {
	return s.registry.List(ctx)
}

func (s *service) Count(ctx context.Context) (int, error) {
	return s.registry.Count(ctx)
}
