package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/janhq/companion-relay/internal/domain/connection"
)

const (
	keyPrefix       = "{companion-relay}:conn:"
	tombstonePrefix = "{companion-relay}:conn-closed:"
	indexKey        = "{companion-relay}:connections"
)

// RedisRegistry shares the connection registry between replicas.
// Entries expire after entryTTL so a crashed node cannot leak connections forever.
// All keys share one hash tag so the unregister transaction stays in a single cluster slot.
type RedisRegistry struct {
	client       redis.UniversalClient
	entryTTL     time.Duration
	tombstoneTTL time.Duration
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(client redis.UniversalClient, entryTTL, tombstoneTTL time.Duration) *RedisRegistry {
	if entryTTL <= 0 {
		entryTTL = 2 * time.Hour
	}
	if tombstoneTTL <= 0 {
		tombstoneTTL = 10 * time.Minute
	}
	return &RedisRegistry{client: client, entryTTL: entryTTL, tombstoneTTL: tombstoneTTL}
}

func (r *RedisRegistry) Register(ctx context.Context, conn *connection.Connection) error {
	closed, err := r.client.Exists(ctx, tombstonePrefix+conn.ID).Result()
	if err != nil {
		return fmt.Errorf("check tombstone: %w", err)
	}
	if closed > 0 {
		return connection.ErrConnectionClosed
	}

	payload, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}

	created, err := r.client.SetNX(ctx, keyPrefix+conn.ID, payload, r.entryTTL).Result()
	if err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	if !created {
		return nil
	}
	if err := r.client.SAdd(ctx, indexKey, conn.ID).Err(); err != nil {
		return fmt.Errorf("index connection: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, id string) (bool, error) {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keyPrefix+id)
		pipe.SRem(ctx, indexKey, id)
		pipe.Set(ctx, tombstonePrefix+id, 1, r.tombstoneTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("unregister connection: %w", err)
	}
	return deleted.Val() > 0, nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*connection.Connection, error) {
	payload, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		closed, existsErr := r.client.Exists(ctx, tombstonePrefix+id).Result()
		if existsErr == nil && closed > 0 {
			return nil, connection.ErrConnectionClosed
		}
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	var conn connection.Connection
	if err := json.Unmarshal(payload, &conn); err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}
	return &conn, nil
}

// List returns live connections across all replicas. Index entries whose key has
// expired are pruned.
func (r *RedisRegistry) List(ctx context.Context) ([]*connection.Connection, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}

	result := make([]*connection.Connection, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var conn connection.Connection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		result = append(result, &conn)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, indexKey, stale...).Err()
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result, nil
}

func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	conns, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(conns), nil
}
