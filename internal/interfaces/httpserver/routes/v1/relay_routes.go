package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/companion-relay/internal/infrastructure/auth"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/handlers"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
)

// RegisterRelayRoutes registers the relay socket and registry routes.
func RegisterRelayRoutes(router gin.IRoutes, handler *handlers.RelayHandler) {
	router.GET("/relay/ws", serveRelay(handler))
	router.GET("/relay/connections/count", countConnections(handler))
}

// serveRelay upgrades to a WebSocket. With auth disabled the connection has no
// bound user and inbound userId values are trusted.
// @Summary      Relay socket
// @Description  Upgrades to a WebSocket carrying chat frames in and token, done and error frames out.
// @Tags         relay
// @Success      101
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      503  {string}  string  "relay is shutting down"
// @Security     BearerAuth
// @Router       /relay/ws [get]
func serveRelay(handler *handlers.RelayHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		// the hub logs upgrade and registration failures with its own logger
		_ = handler.Serve(c.Writer, c.Request, auth.UserID(c))
	}
}

// countConnections godoc
// @Summary      Count relay connections
// @Description  Reports registered connections across all nodes and on the answering node.
// @Tags         relay
// @Produce      json
// @Success      200  {object}  responses.ConnectionCountResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /relay/connections/count [get]
func countConnections(handler *handlers.RelayHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := handler.CountConnections(c.Request.Context())
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
