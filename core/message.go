package core

import (
	"encoding/json"
	"time"
)

// Message is one persisted conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a provider-neutral copy of a message block.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewTextBlock returns a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// NewToolUseBlock returns a tool_use block.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input}
}

// NewToolResultBlock returns a tool_result block.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Context carries the caller's identity and limits into an agent run.
type Context struct {
	UserID         string
	ConversationID string
	Limits         *ExecutionLimits

	// AuditParentID links audit entries of nested runs.
	AuditParentID *string
}

// ExecutionLimits bounds a single agent run.
type ExecutionLimits struct {
	MaxTurns   int
	MaxTokens  int64
	CanConfirm bool
	Timeout    time.Duration
}

// PendingAction is a write tool call waiting for the user's approval.
type PendingAction struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	SessionID      string          `json:"session_id"`
	UserID         string          `json:"user_id"`
	Tool           string          `json:"tool"`
	Input          json.RawMessage `json:"input"`
	Thought        string          `json:"thought,omitempty"`
	Summary        string          `json:"summary"`
	BlockID        string          `json:"block_id"`

	// PriorResults are the results of tool calls made in the same model
	// turn before this one. They are sent together with this call's result.
	PriorResults []ContentBlock `json:"prior_results,omitempty"`

	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the action can no longer be confirmed.
func (p *PendingAction) Expired(now time.Time) bool {
	return p.ExpiresAt > 0 && now.Unix() >= p.ExpiresAt
}

// ToolExecution records one tool call made during a run.
type ToolExecution struct {
	Tool       string      `json:"tool"`
	Input      interface{} `json:"input,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// TokenUsage counts model tokens.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
