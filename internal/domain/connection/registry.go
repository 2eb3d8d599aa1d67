package connection

import "context"

// Registry tracks live connections by id.
type Registry interface {
	// Register records conn. Registering an id that is already live is a no-op.
	Register(ctx context.Context, conn *Connection) error

	// Unregister removes id and reports whether it was live. Unknown ids are not an error.
	Unregister(ctx context.Context, id string) (bool, error)

	// Get returns the live connection for id, or ErrConnectionNotFound / ErrConnectionClosed.
	Get(ctx context.Context, id string) (*Connection, error)

	// List returns all live connections known to this registry.
	List(ctx context.Context) ([]*Connection, error)

	// Count returns the number of live connections.
	Count(ctx context.Context) (int, error)
}
