package responses

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/janhq/companion-relay/internal/domain/character"
	"github.com/janhq/companion-relay/internal/domain/conversation"
	"github.com/janhq/companion-relay/internal/utils/platformerrors"
)

// HandleError maps domain and platform errors to HTTP responses.
func HandleError(c *gin.Context, err error) {
	logger := log.With().Str("path", c.Request.URL.Path).Logger()

	if errors.Is(err, conversation.ErrConversationNotFound) || errors.Is(err, character.ErrCharacterNotFound) {
		platformerrors.WriteNotFound(c, notFoundMessage(err))
		return
	}

	platformerrors.WriteError(c, err, logger)
}

// HandleBindError writes a 400 for request binding and validation failures.
func HandleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		platformerrors.WriteValidationError(c, "invalid field "+fe.Field()+": failed "+fe.Tag())
		return
	}
	platformerrors.WriteValidationError(c, "invalid request body")
}

func notFoundMessage(err error) string {
	if errors.Is(err, character.ErrCharacterNotFound) {
		return "Character not found"
	}
	return "Conversation not found"
}
