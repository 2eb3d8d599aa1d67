package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/infrastructure/registry"
)

func newRedisRegistry(t *testing.T, entryTTL, tombstoneTTL time.Duration) (*registry.RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return registry.NewRedisRegistry(client, entryTTL, tombstoneTTL), mr
}

func TestRedisRegistryRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRedisRegistry(t, time.Hour, time.Minute)

	conn := &connection.Connection{ID: "conn-1", UserID: "u1", NodeID: "node-a", ConnectedAt: time.Now().UTC()}
	require.NoError(t, reg.Register(ctx, conn))
	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-1", NodeID: "node-b"}))

	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := reg.Get(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "node-a", got.NodeID, "second register must not overwrite the first")
	assert.Equal(t, "u1", got.UserID)
}

func TestRedisRegistryUnregisterLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRedisRegistry(t, time.Hour, time.Minute)

	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-1", NodeID: "node-a"}))
	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-2", NodeID: "node-a"}))

	removed, err := reg.Unregister(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Unregister(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, removed, "second unregister is a no-op")

	_, err = reg.Get(ctx, "conn-1")
	assert.ErrorIs(t, err, connection.ErrConnectionClosed)
	assert.ErrorIs(t, reg.Register(ctx, &connection.Connection{ID: "conn-1"}), connection.ErrConnectionClosed)

	_, err = reg.Get(ctx, "conn-unknown")
	assert.ErrorIs(t, err, connection.ErrConnectionNotFound)

	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedisRegistryUnregisterBeforeRegister(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRedisRegistry(t, time.Hour, time.Minute)

	removed, err := reg.Unregister(ctx, "conn-1")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.ErrorIs(t, reg.Register(ctx, &connection.Connection{ID: "conn-1"}), connection.ErrConnectionClosed)
	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisRegistryExpiry(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistry(t, time.Minute, 5*time.Minute)

	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-1", ConnectedAt: time.Now().UTC()}))
	_, err := reg.Unregister(ctx, "conn-1")
	require.NoError(t, err)
	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-2", ConnectedAt: time.Now().UTC()}))

	// a crashed node's entries lapse and are pruned from the index
	mr.FastForward(2 * time.Minute)
	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = reg.Get(ctx, "conn-1")
	assert.ErrorIs(t, err, connection.ErrConnectionClosed, "tombstone outlives the entry")

	mr.FastForward(5 * time.Minute)
	_, err = reg.Get(ctx, "conn-1")
	assert.ErrorIs(t, err, connection.ErrConnectionNotFound)
	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "conn-1"}))
}

func TestRedisRegistryListOrdersByConnectTime(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRedisRegistry(t, time.Hour, time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "late", ConnectedAt: base.Add(time.Minute)}))
	require.NoError(t, reg.Register(ctx, &connection.Connection{ID: "early", ConnectedAt: base}))

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)
}
