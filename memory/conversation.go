package memory

import (
	"fmt"
)

// ConversationMemory stores a user message with the agent's reply.
type ConversationMemory struct {
	base

	UserMessage string
	Response    string
}

// NewConversationMemory creates a ConversationMemory.
func NewConversationMemory(ownerID, userMessage, response string) *ConversationMemory {
	return &ConversationMemory{
		base:        newBase(ownerID, "", nil),
		UserMessage: userMessage,
		Response:    response,
	}
}

// NewConversationMemoryFromStorage rebuilds a ConversationMemory read from a store.
func NewConversationMemoryFromStorage(s Stored, userMessage, response string) *ConversationMemory {
	return &ConversationMemory{base: s.base(), UserMessage: userMessage, Response: response}
}

func (c *ConversationMemory) Type() string {
	return "conversation"
}

func (c *ConversationMemory) Content() interface{} {
	return map[string]string{
		"user_message": c.UserMessage,
		"response":     c.Response,
	}
}

func (c *ConversationMemory) Format(ctx FormatContext) string {
	return fmt.Sprintf("[Conversation] User: %q\n  Agent: %q",
		truncate(c.UserMessage, ctx.MaxLength/3),
		truncate(c.Response, ctx.MaxLength/2))
}

func (c *ConversationMemory) FormatForEmbedding() string {
	return fmt.Sprintf("User: %s\nAgent: %s", c.UserMessage, c.Response)
}
