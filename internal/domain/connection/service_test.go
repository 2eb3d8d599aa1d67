package connection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/infrastructure/registry"
)

type failingRegistry struct {
	connection.Registry
	err error
}

func (f *failingRegistry) Register(ctx context.Context, conn *connection.Connection) error {
	return f.err
}

func (f *failingRegistry) Unregister(ctx context.Context, id string) (bool, error) {
	return false, f.err
}

func (f *failingRegistry) Get(ctx context.Context, id string) (*connection.Connection, error) {
	return nil, connection.ErrConnectionNotFound
}

func TestOnConnectOnDisconnect(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.NewMemoryRegistry(16)
	require.NoError(t, err)

	var connected, disconnected int
	svc := connection.NewService(reg, connection.Hooks{
		Connected:    func(*connection.Connection) { connected++ },
		Disconnected: func(*connection.Connection, time.Duration) { disconnected++ },
	}, zerolog.Nop())

	conn := &connection.Connection{ID: "conn-1", NodeID: "node-a"}
	require.NoError(t, svc.OnConnect(ctx, conn))
	assert.False(t, conn.ConnectedAt.IsZero())

	svc.OnDisconnect(ctx, "conn-1")
	svc.OnDisconnect(ctx, "conn-1")
	svc.OnDisconnect(ctx, "unknown")

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)

	_, err = svc.Get(ctx, "conn-1")
	assert.ErrorIs(t, err, connection.ErrConnectionClosed)
}

func TestOnConnectSurfacesRegistryFailure(t *testing.T) {
	boom := errors.New("registry down")
	svc := connection.NewService(&failingRegistry{err: boom}, connection.Hooks{}, zerolog.Nop())

	err := svc.OnConnect(context.Background(), &connection.Connection{ID: "conn-1"})
	assert.ErrorIs(t, err, boom)

	// disconnect never fails even when the registry does
	svc.OnDisconnect(context.Background(), "conn-1")
}
