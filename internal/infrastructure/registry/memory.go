package registry

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/janhq/companion-relay/internal/domain/connection"
)

// MemoryRegistry is a node-local connection registry.
// Recently disconnected ids are remembered in a bounded LRU so late lookups fail
// with ErrConnectionClosed instead of ErrConnectionNotFound.
type MemoryRegistry struct {
	mu          sync.RWMutex
	connections map[string]*connection.Connection
	tombstones  *lru.Cache
}

// NewMemoryRegistry creates a registry remembering up to tombstones closed ids.
func NewMemoryRegistry(tombstones int) (*MemoryRegistry, error) {
	if tombstones <= 0 {
		tombstones = 1024
	}
	cache, err := lru.New(tombstones)
	if err != nil {
		return nil, err
	}
	return &MemoryRegistry{
		connections: make(map[string]*connection.Connection),
		tombstones:  cache,
	}, nil
}

// Register stores conn. A live id is left untouched; a closed id cannot be reused.
func (r *MemoryRegistry) Register(ctx context.Context, conn *connection.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; exists {
		return nil
	}
	if r.tombstones.Contains(conn.ID) {
		return connection.ErrConnectionClosed
	}
	cp := *conn
	r.connections[conn.ID] = &cp
	return nil
}

// Unregister removes id and tombstones it.
func (r *MemoryRegistry) Unregister(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.connections[id]
	if exists {
		delete(r.connections, id)
		r.tombstones.Add(id, struct{}{})
	}
	return exists, nil
}

// Get returns the live connection for id.
func (r *MemoryRegistry) Get(ctx context.Context, id string) (*connection.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		if r.tombstones.Contains(id) {
			return nil, connection.ErrConnectionClosed
		}
		return nil, connection.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

// List returns live connections ordered by connect time.
func (r *MemoryRegistry) List(ctx context.Context) ([]*connection.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*connection.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		cp := *conn
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result, nil
}

// Count returns the number of live connections.
func (r *MemoryRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections), nil
}
