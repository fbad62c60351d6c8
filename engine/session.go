package engine

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// Session is the message state of one engine run. It keeps the
// conversation both in API form and as core messages for persistence.
type Session struct {
	ID             string
	UserID         string
	ConversationID string
	TurnCount      int
	Traces         []*core.Trace

	history  []core.Message
	messages []anthropic.MessageParam
}

// NewSession creates an empty session.
func NewSession(userID, conversationID string) *Session {
	return &Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
	}
}

// Messages returns the conversation in API form.
func (s *Session) Messages() []anthropic.MessageParam {
	return s.messages
}

// History returns a copy of the conversation as core messages.
func (s *Session) History() []core.Message {
	out := make([]core.Message, len(s.history))
	for i, m := range s.history {
		out[i] = core.Message{Role: m.Role, Content: append([]core.ContentBlock(nil), m.Content...)}
	}
	return out
}

// RestoreHistory loads persisted messages.
func (s *Session) RestoreHistory(history []core.Message) {
	for _, msg := range history {
		s.add(msg.Role, msg.Content...)
	}
}

// add appends blocks under role. Consecutive turns of the same role are
// merged, as the API expects alternating turns.
func (s *Session) add(role string, blocks ...core.ContentBlock) {
	if role != "assistant" {
		role = "user"
	}
	params := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	kept := make([]core.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if p, ok := blockToParam(b); ok {
			params = append(params, p)
			kept = append(kept, b)
		}
	}
	if len(params) == 0 {
		return
	}

	if n := len(s.history); n > 0 && s.history[n-1].Role == role {
		s.history[n-1].Content = append(s.history[n-1].Content, kept...)
		s.messages[n-1].Content = append(s.messages[n-1].Content, params...)
		return
	}
	apiRole := anthropic.MessageParamRoleUser
	if role == "assistant" {
		apiRole = anthropic.MessageParamRoleAssistant
	}
	s.history = append(s.history, core.Message{Role: role, Content: kept})
	s.messages = append(s.messages, anthropic.MessageParam{Role: apiRole, Content: params})
}

func blockToParam(b core.ContentBlock) (anthropic.ContentBlockParamUnion, bool) {
	switch b.Type {
	case "text":
		if b.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewTextBlock(b.Text), true
	case "tool_use":
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return anthropic.NewToolUseBlock(b.ID, input, b.Name), true
	case "tool_result":
		return anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError), true
	}
	return anthropic.ContentBlockParamUnion{}, false
}

// AddUserMessage appends a user text turn.
func (s *Session) AddUserMessage(text string) {
	s.add("user", core.NewTextBlock(text))
}

// AddAssistantResponse appends a model response.
func (s *Session) AddAssistantResponse(resp *anthropic.Message) {
	s.add("assistant", responseToBlocks(resp)...)
}

// AddToolResults appends tool results as a user turn.
func (s *Session) AddToolResults(results []core.ContentBlock) {
	s.add("user", results...)
}

// AddTrace records a ReAct trace.
func (s *Session) AddTrace(t *core.Trace) {
	s.Traces = append(s.Traces, t)
}

// IncrementTurnCount advances the turn counter.
func (s *Session) IncrementTurnCount() {
	s.TurnCount++
}

// responseToBlocks converts a model response to core blocks.
func responseToBlocks(resp *anthropic.Message) []core.ContentBlock {
	blocks := make([]core.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, core.NewTextBlock(block.Text))
		case "tool_use":
			blocks = append(blocks, core.NewToolUseBlock(block.ID, block.Name, json.RawMessage(block.Input)))
		}
	}
	return blocks
}
