package handlers

import (
	"github.com/google/wire"
)

// Provider holds all HTTP handlers.
type Provider struct {
	Conversation *ConversationHandler
	Character    *CharacterHandler
	Relay        *RelayHandler
}

// NewProvider creates a new handler provider.
func NewProvider(conversation *ConversationHandler, character *CharacterHandler, relay *RelayHandler) *Provider {
	return &Provider{
		Conversation: conversation,
		Character:    character,
		Relay:        relay,
	}
}

// HandlerProvider provides all handlers for wire.
var HandlerProvider = wire.NewSet(
	NewConversationHandler,
	NewCharacterHandler,
	NewProvider,
)
