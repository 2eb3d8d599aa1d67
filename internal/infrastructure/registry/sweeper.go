package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/companion-relay/internal/domain/connection"
)

// Terminator closes a connection owned by this node.
type Terminator interface {
	Disconnect(ctx context.Context, connectionID string, reason string)
}

// MessagePruner deletes messages older than a cutoff.
type MessagePruner interface {
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically closes connections past their maximum lifetime and
// prunes messages past the retention window.
type Sweeper struct {
	connections connection.Service
	terminator  Terminator
	pruner      MessagePruner
	nodeID      string
	maxLifetime time.Duration
	retention   time.Duration
	interval    time.Duration
	now         func() time.Time
	log         zerolog.Logger
	done        chan struct{}
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	NodeID      string
	MaxLifetime time.Duration
	Retention   time.Duration
	Interval    time.Duration
}

// NewSweeper creates a sweeper. pruner may be nil to skip message retention.
func NewSweeper(
	connections connection.Service,
	terminator Terminator,
	pruner MessagePruner,
	cfg SweeperConfig,
	log zerolog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Sweeper{
		connections: connections,
		terminator:  terminator,
		pruner:      pruner,
		nodeID:      cfg.NodeID,
		maxLifetime: cfg.MaxLifetime,
		retention:   cfg.Retention,
		interval:    cfg.Interval,
		now:         time.Now,
		log:         log.With().Str("component", "registry-sweeper").Logger(),
		done:        make(chan struct{}),
	}
}

// Start begins the sweep loop in background.
// Safe to call multiple times - only the first call starts the sweeper.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
		s.log.Info().Dur("interval", s.interval).Msg("registry sweeper started")
	})
}

// Stop gracefully shuts down the sweeper.
// Safe to call multiple times - only the first call stops the sweeper.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.log.Info().Msg("registry sweeper stopped")
	})
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("context cancelled, shutting down sweeper")
			return
		case <-s.done:
			s.log.Debug().Msg("done signal received, shutting down sweeper")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of connections closed and messages pruned.
func (s *Sweeper) Sweep(ctx context.Context) (int, int64) {
	closed := s.expireConnections(ctx)
	pruned := s.pruneMessages(ctx)
	if closed > 0 || pruned > 0 {
		s.log.Info().Int("connections_closed", closed).Int64("messages_pruned", pruned).Msg("sweep cycle")
	}
	return closed, pruned
}

func (s *Sweeper) expireConnections(ctx context.Context) int {
	if s.maxLifetime <= 0 {
		return 0
	}
	conns, err := s.connections.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list connections")
		return 0
	}

	now := s.now()
	closed := 0
	for _, conn := range conns {
		if s.nodeID != "" && conn.NodeID != s.nodeID {
			continue
		}
		if conn.Age(now) <= s.maxLifetime {
			continue
		}
		s.terminator.Disconnect(ctx, conn.ID, "max_lifetime")
		closed++
		s.log.Info().
			Str("action", "closed").
			Str("connection_id", conn.ID).
			Dur("age", conn.Age(now)).
			Msg("connection cleanup")
	}
	return closed
}

func (s *Sweeper) pruneMessages(ctx context.Context) int64 {
	if s.pruner == nil || s.retention <= 0 {
		return 0
	}
	deleted, err := s.pruner.DeleteMessagesBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to prune expired messages")
		return 0
	}
	return deleted
}
