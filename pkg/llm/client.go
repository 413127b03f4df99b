// Package llm defines the minimal chat-completion surface the orchestration
// core needs from a language-model backend.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client is the abstraction over any chat-completion backend. Errors are
// surfaced without retry; callers own fallback policy.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends messages to model and returns the assistant reply text.
	Complete(ctx context.Context, messages []Message, model string, temperature float64) (string, error)
}

// EstimateTokens approximates the token count of a message sequence.
// ~4 chars per token is a rough GPT-series approximation.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total / 4
}
