package relay

import (
	"context"

	"github.com/janhq/companion-relay/internal/domain/conversation"
)

// ContextMessage is one role-tagged entry of a context window.
type ContextMessage struct {
	Role    conversation.Role
	Content string
}

// Completion is the final result of a streamed generation.
type Completion struct {
	Content string
	Tokens  int
	// TokensApproximate is set when the provider reported no usage and Tokens was estimated.
	TokensApproximate bool
	Model             string
}

// CompletionProvider streams a generation for an ordered context window.
// onIncrement is called synchronously, in order, for every non-empty text increment.
type CompletionProvider interface {
	StreamCompletion(ctx context.Context, messages []ContextMessage, onIncrement func(string)) (*Completion, error)
}
