package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/companion-relay/internal/interfaces/httpserver/handlers"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/requests"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
)

// RegisterConversationRoutes registers the conversation routes.
func RegisterConversationRoutes(router gin.IRoutes, handler *handlers.ConversationHandler) {
	router.POST("/conversations", createConversation(handler))
	router.GET("/conversations", listConversations(handler))
	router.GET("/conversations/:id", getConversation(handler))
	router.GET("/conversations/:id/messages", listMessages(handler))
}

// createConversation godoc
// @Summary      Create conversation
// @Description  Starts a conversation with one of the caller's characters.
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Param        request  body      requests.CreateConversationRequest  true  "Conversation to create"
// @Success      201      {object}  responses.ConversationResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      401      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /conversations [post]
func createConversation(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		var req requests.CreateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleBindError(c, err)
			return
		}

		resp, err := handler.CreateConversation(c.Request.Context(), userID, req)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// listConversations godoc
// @Summary      List conversations
// @Description  Returns the caller's conversations, most recently active first.
// @Tags         conversations
// @Produce      json
// @Param        limit  query     int  false  "Maximum results (1-200)"
// @Success      200    {object}  responses.ConversationListResponse
// @Failure      400    {object}  responses.ErrorResponse
// @Failure      401    {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /conversations [get]
func listConversations(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		var query requests.ListQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			responses.HandleBindError(c, err)
			return
		}

		resp, err := handler.ListConversations(c.Request.Context(), userID, query)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// getConversation godoc
// @Summary      Get conversation
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation ID"
// @Success      200  {object}  responses.ConversationResponse
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /conversations/{id} [get]
func getConversation(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		resp, err := handler.GetConversation(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// listMessages godoc
// @Summary      List conversation messages
// @Description  Pages backwards through history. Each page is ordered oldest first; pass nextCursor to fetch older messages.
// @Tags         conversations
// @Produce      json
// @Param        id      path      string  true   "Conversation ID"
// @Param        limit   query     int     false  "Page size (1-200)"
// @Param        cursor  query     string  false  "Opaque cursor from a previous page"
// @Success      200     {object}  responses.MessagePageResponse
// @Failure      400     {object}  responses.ErrorResponse
// @Failure      401     {object}  responses.ErrorResponse
// @Failure      404     {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /conversations/{id}/messages [get]
func listMessages(handler *handlers.ConversationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		var query requests.HistoryQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			responses.HandleBindError(c, err)
			return
		}

		resp, err := handler.ListMessages(c.Request.Context(), userID, c.Param("id"), query)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
