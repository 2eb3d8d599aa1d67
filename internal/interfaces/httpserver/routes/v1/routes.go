package v1

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/janhq/companion-relay/internal/infrastructure/auth"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/handlers"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// UserIDHeader identifies the caller when authentication is disabled.
const UserIDHeader = "X-User-ID"

// Routes holds the v1 route configuration.
type Routes struct {
	handlers *handlers.Provider
}

// NewRoutes creates a new v1 routes instance.
func NewRoutes(handlerProvider *handlers.Provider) *Routes {
	return &Routes{handlers: handlerProvider}
}

// Register registers all v1 routes on the engine behind authMiddleware.
func (r *Routes) Register(engine *gin.Engine, authMiddleware gin.HandlerFunc) {
	v1 := engine.Group("/v1")
	if authMiddleware != nil {
		v1.Use(authMiddleware)
	}
	RegisterConversationRoutes(v1, r.handlers.Conversation)
	RegisterCharacterRoutes(v1, r.handlers.Character)
	RegisterRelayRoutes(v1, r.handlers.Relay)
}

// requireUserID resolves the caller from the token subject, falling back to the
// X-User-ID header when authentication is disabled. It aborts with 401 when neither is present.
func requireUserID(c *gin.Context) (string, bool) {
	if userID := auth.UserID(c); userID != "" {
		return userID, true
	}
	if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
		return userID, true
	}
	platformerrors.WriteUnauthorized(c, "missing user identity")
	c.Abort()
	return "", false
}
