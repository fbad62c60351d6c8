package core

import (
	"bytes"
	"context"
	"encoding/json"
	"text/template"
)

// Tool is a capability the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}

	// RequiresConfirmation reports whether the user must approve a call
	// before it runs.
	RequiresConfirmation() bool

	// GetSummary renders a one-line description of a call for the
	// confirmation prompt.
	GetSummary(input json.RawMessage) string

	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolParams carries a single tool invocation.
type ToolParams struct {
	UserID string
	Input  json.RawMessage

	// ConfirmationID is set when the call was approved by the user.
	ConfirmationID string
	RequestID      string
}

// ToolResult is what a tool returns to the agent. Failures the agent
// should see and react to go in Error with Success false; a returned Go
// error means the tool itself broke.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ToolDefinition describes a tool that is backed by a ToolExecutor.
type ToolDefinition struct {
	ToolName                 string
	ToolDescription          string
	RequiresUserConfirmation bool

	// SummaryTemplate is a text/template rendered against the decoded
	// input, e.g. "Deposit {{.amount}} into the vault".
	SummaryTemplate string
	InputSchema     map[string]interface{}
}

// RenderSummary renders tmpl against input. It falls back to fallback
// when the template or input cannot be used.
func RenderSummary(tmpl string, input json.RawMessage, fallback string) string {
	if tmpl == "" {
		return fallback
	}
	t, err := template.New("summary").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return fallback
	}
	var data map[string]interface{}
	if err := json.Unmarshal(input, &data); err != nil {
		return fallback
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fallback
	}
	return buf.String()
}

// ExecutorTool is a Tool that forwards calls to a ToolExecutor.
type ExecutorTool struct {
	def      ToolDefinition
	executor ToolExecutor
}

// NewExecutorTool creates a Tool from a definition and executor.
func NewExecutorTool(def ToolDefinition, executor ToolExecutor) *ExecutorTool {
	return &ExecutorTool{def: def, executor: executor}
}

func (t *ExecutorTool) Name() string                   { return t.def.ToolName }
func (t *ExecutorTool) Description() string            { return t.def.ToolDescription }
func (t *ExecutorTool) Schema() map[string]interface{} { return t.def.InputSchema }
func (t *ExecutorTool) RequiresConfirmation() bool     { return t.def.RequiresUserConfirmation }

func (t *ExecutorTool) GetSummary(input json.RawMessage) string {
	return RenderSummary(t.def.SummaryTemplate, input, t.def.ToolName)
}

// Execute runs the call through the executor. Write tools use
// ExecuteWrite so the remote side does not ask for confirmation again.
func (t *ExecutorTool) Execute(ctx context.Context, params *ToolParams) (*ToolResult, error) {
	req := &ExecuteRequest{
		UserID:         params.UserID,
		Tool:           t.def.ToolName,
		Input:          params.Input,
		RequestID:      params.RequestID,
		ConfirmationID: params.ConfirmationID,
	}

	var (
		resp *ExecuteResponse
		err  error
	)
	if t.def.RequiresUserConfirmation {
		resp, err = t.executor.ExecuteWrite(ctx, req)
	} else {
		resp, err = t.executor.Execute(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return &ToolResult{Success: false, Error: resp.Error}, nil
	}

	var data interface{}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			data = string(resp.Data)
		}
	}
	return &ToolResult{Success: true, Data: data}, nil
}
