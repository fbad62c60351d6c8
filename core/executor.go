package core

import (
	"context"
	"encoding/json"
)

// ToolExecutor runs tools hosted by a remote service, such as the managed
// wallet that signs vault transactions.
type ToolExecutor interface {
	// Execute runs a read tool.
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)

	// ExecuteWrite runs a write tool that the user already approved.
	ExecuteWrite(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
}

// ExecuteRequest is a single remote tool call.
type ExecuteRequest struct {
	UserID         string          `json:"user_id"`
	Tool           string          `json:"tool"`
	Input          json.RawMessage `json:"input"`
	RequestID      string          `json:"request_id,omitempty"`
	ConfirmationID string          `json:"confirmation_id,omitempty"`
}

// ExecuteResponse is the remote service's answer.
type ExecuteResponse struct {
	Success              bool            `json:"success"`
	Data                 json.RawMessage `json:"data,omitempty"`
	Error                string          `json:"error,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation,omitempty"`
	ConfirmationID       string          `json:"confirmation_id,omitempty"`
}
