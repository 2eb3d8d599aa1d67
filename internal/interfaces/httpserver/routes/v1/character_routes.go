package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/companion-relay/internal/interfaces/httpserver/handlers"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/requests"
	"github.com/janhq/companion-relay/internal/interfaces/httpserver/responses"
)

// RegisterCharacterRoutes registers the character routes.
func RegisterCharacterRoutes(router gin.IRoutes, handler *handlers.CharacterHandler) {
	router.POST("/characters", createCharacter(handler))
	router.GET("/characters", listCharacters(handler))
	router.GET("/characters/:id", getCharacter(handler))
	router.PATCH("/characters/:id", updateCharacter(handler))
	router.DELETE("/characters/:id", deleteCharacter(handler))
}

// createCharacter godoc
// @Summary      Create character
// @Description  Creates a character from personality traits, or generates one from a free-form prompt.
// @Tags         characters
// @Accept       json
// @Produce      json
// @Param        request  body      requests.CreateCharacterRequest  true  "Character to create"
// @Success      201      {object}  responses.CharacterResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      401      {object}  responses.ErrorResponse
// @Failure      502      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /characters [post]
func createCharacter(handler *handlers.CharacterHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		var req requests.CreateCharacterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleBindError(c, err)
			return
		}

		resp, err := handler.CreateCharacter(c.Request.Context(), userID, req)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// listCharacters godoc
// @Summary      List characters
// @Tags         characters
// @Produce      json
// @Param        limit  query     int  false  "Maximum results (1-200)"
// @Success      200    {object}  responses.CharacterListResponse
// @Failure      400    {object}  responses.ErrorResponse
// @Failure      401    {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /characters [get]
func listCharacters(handler *handlers.CharacterHandler) gin.HandlerFunc {
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

		resp, err := handler.ListCharacters(c.Request.Context(), userID, query)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// getCharacter godoc
// @Summary      Get character
// @Tags         characters
// @Produce      json
// @Param        id   path      string  true  "Character ID"
// @Success      200  {object}  responses.CharacterResponse
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /characters/{id} [get]
func getCharacter(handler *handlers.CharacterHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		resp, err := handler.GetCharacter(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// updateCharacter godoc
// @Summary      Update character
// @Description  Changes only the supplied fields. The system prompt is not regenerated when traits change.
// @Tags         characters
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Character ID"
// @Param        request  body      requests.UpdateCharacterRequest  true  "Fields to change"
// @Success      200      {object}  responses.CharacterResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      401      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /characters/{id} [patch]
func updateCharacter(handler *handlers.CharacterHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		var req requests.UpdateCharacterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleBindError(c, err)
			return
		}

		resp, err := handler.UpdateCharacter(c.Request.Context(), userID, c.Param("id"), req)
		if err != nil {
			responses.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// deleteCharacter godoc
// @Summary      Delete character
// @Description  Removes the character. Its conversations stay readable but no longer accept chat frames.
// @Tags         characters
// @Param        id   path  string  true  "Character ID"
// @Success      204
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /characters/{id} [delete]
func deleteCharacter(handler *handlers.CharacterHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		if err := handler.DeleteCharacter(c.Request.Context(), userID, c.Param("id")); err != nil {
			responses.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
