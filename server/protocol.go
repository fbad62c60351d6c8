package server

import (
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
)

// Inbound frame types.
const (
	TypeMessage = "message"
	TypeConfirm = "confirm"
	TypeCancel  = "cancel"
)

// Outbound frame types.
const (
	TypeText           = "text"
	TypeTextChunk      = "text_chunk"
	TypeConfirmRequest = "confirm_request"
	TypeOperation      = "operation"
	TypeError          = "error"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	ActionID string `json:"action_id,omitempty"`
}

// ServerMessage is a frame sent to the client.
type ServerMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`

	// confirm_request
	ActionID  string `json:"action_id,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Summary   string `json:"summary,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`

	// operation
	Operation *orchestrator.State `json:"operation,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}
