package handlers

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/janhq/companion-relay/internal/domain/connection"
	"github.com/janhq/companion-relay/internal/infrastructure/observability"
	"github.com/janhq/companion-relay/internal/infrastructure/wsrelay"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// RelayHandler upgrades relay connections and reports registry state.
type RelayHandler struct {
	hub         *wsrelay.Hub
	frames      wsrelay.FrameHandler
	connections connection.Service
	nodeID      string
}

// NewRelayHandler creates a relay handler. frames is normally the relay engine.
func NewRelayHandler(hub *wsrelay.Hub, frames wsrelay.FrameHandler, connections connection.Service, nodeID string) *RelayHandler {
	return &RelayHandler{hub: hub, frames: frames, connections: connections, nodeID: nodeID}
}

// Serve runs a relay connection until it closes.
func (h *RelayHandler) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	observability.AddSpanAttributes(r.Context(),
		attribute.String("relay.node_id", h.nodeID),
		attribute.Bool("relay.authenticated", userID != ""),
	)
	return h.hub.Serve(w, r, userID, h.frames)
}

// CountConnections reports the registered connections across all nodes and on this node.
func (h *RelayHandler) CountConnections(ctx context.Context) (*responses.ConnectionCountResponse, error) {
	count, err := h.connections.Count(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to count connections")
	}
	return &responses.ConnectionCountResponse{
		Count: count,
		Local: h.hub.Count(),
		Node:  h.nodeID,
	}, nil
}
