package connection

import (
	"errors"
	"time"
)

var (
	// ErrConnectionNotFound is returned for ids the registry has never seen.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrConnectionClosed is returned for ids that were registered and have since disconnected.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is one live relay connection. It is never mutated after registration.
type Connection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	NodeID      string    `json:"node_id"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Age returns how long the connection has been open.
func (c *Connection) Age(now time.Time) time.Duration {
	return now.Sub(c.ConnectedAt)
}
