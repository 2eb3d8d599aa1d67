package relay

import "github.com/janhq/companion-relay/internal/domain/conversation"

// BuildContextWindow assembles [system, ...history oldest-first] from a newest-first
// history slice. At most limit history entries are kept, so the window never exceeds limit+1.
func BuildContextWindow(systemPrompt string, newestFirst []*conversation.Message, limit int) []ContextMessage {
	if limit < 0 {
		limit = 0
	}
	if len(newestFirst) > limit {
		newestFirst = newestFirst[:limit]
	}

	window := make([]ContextMessage, 0, len(newestFirst)+1)
	window = append(window, ContextMessage{Role: conversation.RoleSystem, Content: systemPrompt})
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := newestFirst[i]
		if msg == nil {
			continue
		}
		window = append(window, ContextMessage{Role: msg.Role, Content: msg.Content})
	}
	return window
}
