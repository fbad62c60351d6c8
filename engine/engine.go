// Package engine runs the ReAct agent loop over Claude.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/memory"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	defaultMaxTurns  = 20
)

// Engine is the agent runner that executes tools and manages Claude API interactions.
type Engine struct {
	client     *anthropic.Client
	registry   *ToolRegistry
	guardrails Guardrails     // Optional: rate limiting and circuit breaker
	audit      AuditLogger    // Optional: audit logging
	memory     memory.Manager // Optional: memory system for trace retrieval/storage
	pending    *PendingStore  // Optional: confirmations awaiting the user
	log        zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithGuardrails sets the guardrails implementation for rate limiting.
func WithGuardrails(g Guardrails) Option {
	return func(e *Engine) {
		e.guardrails = g
	}
}

// WithAudit sets the audit logger implementation.
func WithAudit(a AuditLogger) Option {
	return func(e *Engine) {
		e.audit = a
	}
}

// WithMemory configures the engine with a memory manager.
func WithMemory(m memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithPendingStore keeps confirmations in s so Confirm and Cancel can find
// them by ID.
func WithPendingStore(s *PendingStore) Option {
	return func(e *Engine) {
		e.pending = s
	}
}

// WithLogger overrides the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates a new engine with the given Anthropic client and registry.
func NewEngine(client *anthropic.Client, registry *ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		registry: registry,
		log:      logger.GetForComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *ToolRegistry {
	return e.registry
}

// Input represents the input to an agent run.
type Input struct {
	// UserMessage is the user's message to process.
	UserMessage string

	// Context contains user identity and execution limits.
	Context *core.Context

	// History contains previous messages in the conversation.
	History []core.Message

	SystemPrompt string
	Model        string
	MaxTokens    int64

	// AgentName identifies the agent for audit logging.
	// Defaults to "default" if not specified.
	AgentName string

	// AvailableTools filters which tools from the registry are available.
	// If empty, all registered tools are available.
	AvailableTools []string

	// StreamCallback is an optional callback for streaming responses.
	StreamCallback func(chunk string, done bool)
}

// Output represents the output from an agent run.
type Output struct {
	Type OutputType

	// Text is the agent's text response.
	Text string

	// PendingAction is set when Type is OutputConfirmationNeeded.
	PendingAction *core.PendingAction

	// ToolsUsed records all tools invoked during this run.
	ToolsUsed []core.ToolExecution

	// ResponseBlocks contains the last model response.
	ResponseBlocks []core.ContentBlock

	// History is the whole conversation after the run, ready to persist
	// and pass back as Input.History.
	History []core.Message

	// TokensUsed tracks Claude API token consumption for this run.
	TokensUsed core.TokenUsage

	// Error is set when Type is OutputError.
	Error error
}

// OutputType indicates the kind of output from an agent run.
type OutputType int

const (
	// OutputComplete indicates the agent finished successfully.
	OutputComplete OutputType = iota

	// OutputConfirmationNeeded indicates a write operation needs user confirmation.
	OutputConfirmationNeeded

	// OutputError indicates an error occurred.
	OutputError
)

// run carries the resolved settings of one Run or Confirm call.
type run struct {
	input         *Input
	session       *Session
	model         string
	maxTokens     int64
	systemPrompt  string
	apiTools      []anthropic.ToolUnionParam
	maxTurns      int
	canConfirm    bool
	agentName     string
	auditParentID *string
	toolsUsed     []core.ToolExecution
	tokens        core.TokenUsage
}

func (e *Engine) prepare(ctx context.Context, input *Input) (context.Context, context.CancelFunc, *run) {
	r := &run{
		input:        input,
		model:        input.Model,
		maxTokens:    input.MaxTokens,
		systemPrompt: input.SystemPrompt,
		maxTurns:     defaultMaxTurns,
		canConfirm:   true,
		agentName:    input.AgentName,
	}
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxTokens == 0 {
		r.maxTokens = defaultMaxTokens
	}
	if r.systemPrompt == "" {
		r.systemPrompt = DefaultSystemPrompt
	}
	if r.agentName == "" {
		r.agentName = "default"
	}

	cancel := context.CancelFunc(func() {})
	userID, conversationID := "", ""
	if c := input.Context; c != nil {
		userID, conversationID = c.UserID, c.ConversationID
		r.auditParentID = c.AuditParentID
		if c.Limits != nil {
			if c.Limits.MaxTurns > 0 {
				r.maxTurns = c.Limits.MaxTurns
			}
			r.canConfirm = c.Limits.CanConfirm
			if c.Limits.MaxTokens > 0 {
				r.maxTokens = c.Limits.MaxTokens
			}
			if c.Limits.Timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, c.Limits.Timeout)
			}
		}
	}

	if len(input.AvailableTools) > 0 {
		r.apiTools = e.registry.ToAPIToolsFiltered(FilterByNames(input.AvailableTools...))
	} else {
		r.apiTools = e.registry.ToAPITools()
	}

	r.session = NewSession(userID, conversationID)
	r.session.RestoreHistory(input.History)
	return ctx, cancel, r
}

func (e *Engine) checkGuardrails(ctx context.Context, input *Input) *Output {
	if e.guardrails == nil || input.Context == nil {
		return nil
	}
	result, err := e.guardrails.Check(ctx, input.Context.UserID)
	if err != nil {
		return &Output{Type: OutputError, Error: fmt.Errorf("guardrails check failed: %w", err)}
	}
	if !result.Allowed {
		return &Output{Type: OutputError, Error: fmt.Errorf("request blocked by guardrails: %s", result.Warning)}
	}
	return nil
}

// Run executes the agent loop until completion or confirmation is needed.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if out := e.checkGuardrails(ctx, input); out != nil {
		return out, nil
	}

	ctx, cancel, r := e.prepare(ctx, input)
	defer cancel()

	// Retrieve memories before the first turn.
	if e.memory != nil && input.UserMessage != "" && input.Context != nil {
		enrichment, err := e.memory.Retrieve(ctx, input.Context.UserID, input.UserMessage)
		if err != nil {
			e.log.Warn().Err(err).Msg("memory retrieval failed")
		} else if enrichment != "" {
			r.systemPrompt += "\n\n" + enrichment
		}
	}

	if input.UserMessage != "" {
		r.session.AddUserMessage(input.UserMessage)
	}
	return e.loop(ctx, r)
}

// Confirm runs the pending action id after the user approved it.
func (e *Engine) Confirm(ctx context.Context, input *Input, confirmationID string) (*Output, error) {
	if e.pending == nil {
		return nil, fmt.Errorf("no pending store configured")
	}
	userID := ""
	if input.Context != nil {
		userID = input.Context.UserID
	}
	action, err := e.pending.Take(confirmationID, userID)
	if err != nil {
		return nil, err
	}
	return e.RunConfirmedAction(ctx, input, action)
}

// Cancel drops the pending action id and returns the tool results that
// close its model turn. Append them to the history before the next run.
func (e *Engine) Cancel(userID, confirmationID string) (*core.Message, error) {
	if e.pending == nil {
		return nil, fmt.Errorf("no pending store configured")
	}
	action, err := e.pending.Take(confirmationID, userID)
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("confirmation_id", action.ID).Str("tool", action.Tool).Msg("action cancelled by user")
	msg := CancellationMessage(action)
	return &msg, nil
}

// CancellationMessage is the user turn that answers a declined action.
func CancellationMessage(action *core.PendingAction) core.Message {
	blocks := append([]core.ContentBlock{}, action.PriorResults...)
	blocks = append(blocks, core.NewToolResultBlock(action.BlockID, "The user declined this action. Do not retry unless asked.", true))
	return core.Message{Role: "user", Content: blocks}
}

// RunConfirmedAction resumes the ReAct loop for a confirmed write operation.
// Input.History must end with the model turn that requested action.
func (e *Engine) RunConfirmedAction(ctx context.Context, input *Input, action *core.PendingAction) (*Output, error) {
	tool, ok := e.registry.Get(action.Tool)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", action.Tool)
	}

	ctx, cancel, r := e.prepare(ctx, input)
	defer cancel()

	trace := e.newTrace(r.session, action.Thought, action.Tool, action.Input)
	trace.Metadata["confirmed"] = "true"
	trace.Metadata["confirmation_id"] = action.ID

	// Empty confirmation ID: approval was handled here, execute directly.
	result := e.execute(ctx, r, tool, action.BlockID, action.Input, trace, "")

	results := append([]core.ContentBlock{}, action.PriorResults...)
	results = append(results, result)
	r.session.AddToolResults(results)

	return e.loop(ctx, r)
}

// loop calls the model until it stops asking for tools or a write needs
// confirmation.
func (e *Engine) loop(ctx context.Context, r *run) (*Output, error) {
	session := r.session
	for {
		if ctx.Err() != nil {
			return e.fail(ctx, r, fmt.Errorf("timed out: %w", ctx.Err())), nil
		}
		if session.TurnCount >= r.maxTurns {
			return e.fail(ctx, r, fmt.Errorf("exceeded maximum turns (%d)", r.maxTurns)), nil
		}
		session.IncrementTurnCount()

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(r.model),
			MaxTokens: r.maxTokens,
			Messages:  session.Messages(),
			System: []anthropic.TextBlockParam{
				{Text: r.systemPrompt},
			},
		}
		if len(r.apiTools) > 0 {
			params.Tools = r.apiTools
		}

		var (
			resp *anthropic.Message
			err  error
		)
		if r.input.StreamCallback != nil {
			resp, err = e.createMessageStreaming(ctx, params, r.input.StreamCallback)
		} else {
			resp, err = e.client.Messages.New(ctx, params)
		}
		if err != nil {
			out := e.fail(ctx, r, fmt.Errorf("claude API error: %w", err))
			return out, err
		}

		r.tokens.InputTokens += int(resp.Usage.InputTokens)
		r.tokens.OutputTokens += int(resp.Usage.OutputTokens)

		var (
			results      []core.ContentBlock
			textResponse string
			confirmation *core.PendingAction
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				textResponse += block.Text
			case "tool_use":
				if confirmation != nil {
					results = append(results, core.NewToolResultBlock(block.ID,
						fmt.Sprintf("not executed: waiting for the user to confirm %s", confirmation.Tool), true))
					continue
				}
				res, pending := e.handleToolUse(ctx, r, block.ID, block.Name, json.RawMessage(block.Input))
				if pending != nil {
					confirmation = pending
					continue
				}
				results = append(results, res)
			}
		}

		session.AddAssistantResponse(resp)
		responseBlocks := responseToBlocks(resp)

		if confirmation != nil {
			confirmation.PriorResults = results
			if e.pending != nil {
				if err := e.pending.Put(confirmation); err != nil {
					return e.fail(ctx, r, err), nil
				}
			}
			return &Output{
				Type:           OutputConfirmationNeeded,
				Text:           textResponse,
				PendingAction:  confirmation,
				ToolsUsed:      r.toolsUsed,
				ResponseBlocks: responseBlocks,
				History:        session.History(),
				TokensUsed:     r.tokens,
			}, nil
		}

		if len(results) == 0 {
			if r.input.StreamCallback != nil {
				r.input.StreamCallback("", true)
			}
			if e.guardrails != nil && r.input.Context != nil {
				e.guardrails.RecordSuccess(ctx, r.input.Context.UserID)
			}
			e.record(ctx, r, textResponse)
			return &Output{
				Type:           OutputComplete,
				Text:           textResponse,
				ToolsUsed:      r.toolsUsed,
				ResponseBlocks: responseBlocks,
				History:        session.History(),
				TokensUsed:     r.tokens,
			}, nil
		}

		session.AddToolResults(results)
	}
}

func (e *Engine) fail(ctx context.Context, r *run, err error) *Output {
	if e.guardrails != nil && r.input.Context != nil {
		e.guardrails.RecordFailure(ctx, r.input.Context.UserID)
	}
	return &Output{
		Type:       OutputError,
		Error:      err,
		ToolsUsed:  r.toolsUsed,
		History:    r.session.History(),
		TokensUsed: r.tokens,
	}
}

// record stores traces and the exchange in memory.
func (e *Engine) record(ctx context.Context, r *run, textResponse string) {
	if e.memory == nil || r.input.Context == nil {
		return
	}
	userID := r.input.Context.UserID
	if len(r.session.Traces) > 0 {
		if err := e.memory.RecordTraces(ctx, userID, r.session.Traces); err != nil {
			e.log.Warn().Err(err).Msg("recording traces failed")
		}
	}
	if textResponse != "" {
		if err := e.memory.RecordConversation(ctx, userID, r.input.UserMessage, textResponse); err != nil {
			e.log.Warn().Err(err).Msg("recording conversation failed")
		}
	}
}

// handleToolUse validates one tool call and either runs it or returns the
// pending action it needs.
func (e *Engine) handleToolUse(ctx context.Context, r *run, blockID, name string, input json.RawMessage) (core.ContentBlock, *core.PendingAction) {
	session := r.session

	// THINK: extract the thought.
	var base core.BaseInput
	if err := json.Unmarshal(input, &base); err != nil {
		return core.NewToolResultBlock(blockID, fmt.Sprintf("invalid tool input JSON: %s", err.Error()), true), nil
	}
	thought := strings.TrimSpace(base.Thought)

	tool, ok := e.registry.Get(name)
	if !ok {
		return core.NewToolResultBlock(blockID, fmt.Sprintf("unknown tool: %s", name), true), nil
	}

	// VALIDATE: writes need reasoning.
	if tool.RequiresConfirmation() && thought == "" {
		return core.NewToolResultBlock(blockID, `Error: Missing or empty "thought" field. Operations that move funds require explicit reasoning.
Please explain:
1. What you've verified (e.g., "Wallet holds 500 tokens, enough for a 100 token deposit")
2. Why you're taking this action (e.g., "User asked to deposit 100 tokens")
3. What you expect to happen (e.g., "Approval then deposit, about 95 shares received")`, true), nil
	}

	trace := e.newTrace(session, thought, name, input)

	if tool.RequiresConfirmation() {
		if !r.canConfirm {
			trace.Observation = "Operation blocked: confirmation not allowed in this context"
			trace.Metadata["error"] = "confirmation_disabled"
			session.AddTrace(trace)
			e.log.Info().Str("trace", trace.String()).Msg("react trace")
			return core.NewToolResultBlock(blockID, "error: this operation requires user confirmation", true), nil
		}

		now := time.Now()
		ttl := DefaultConfirmationTTL
		if e.pending != nil {
			ttl = e.pending.TTL()
		}
		action := &core.PendingAction{
			ID:             uuid.New().String(),
			IdempotencyKey: GenerateIdempotencyKey(session.UserID, name, input),
			SessionID:      session.ID,
			UserID:         session.UserID,
			Tool:           name,
			Input:          input,
			Thought:        thought,
			Summary:        tool.GetSummary(input),
			BlockID:        blockID,
			CreatedAt:      now.Unix(),
			ExpiresAt:      now.Add(ttl).Unix(),
		}

		trace.Observation = "Awaiting user confirmation"
		trace.Metadata["confirmation_id"] = action.ID
		trace.Metadata["status"] = "pending_confirmation"
		session.AddTrace(trace)
		e.log.Info().Str("trace", trace.String()).Msg("react trace")
		return core.ContentBlock{}, action
	}

	// ACT + OBSERVE
	return e.execute(ctx, r, tool, blockID, input, trace, ""), nil
}

func (e *Engine) newTrace(session *Session, thought, action string, input json.RawMessage) *core.Trace {
	return &core.Trace{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		TurnNumber:  session.TurnCount,
		Thought:     thought,
		Action:      action,
		ActionInput: input,
		Timestamp:   time.Now().Unix(),
		Metadata:    make(map[string]string),
	}
}

// execute runs tool, completes trace, writes the audit entry and returns
// the tool_result block for the model.
func (e *Engine) execute(ctx context.Context, r *run, tool core.Tool, blockID string, input json.RawMessage, trace *core.Trace, confirmationID string) core.ContentBlock {
	session := r.session
	startTime := time.Now()
	result, err := tool.Execute(ctx, &core.ToolParams{
		UserID:         session.UserID,
		Input:          input,
		ConfirmationID: confirmationID,
		RequestID:      session.ID,
	})
	durationMs := time.Since(startTime).Milliseconds()

	var decoded interface{}
	_ = json.Unmarshal(input, &decoded)
	execution := core.ToolExecution{Tool: tool.Name(), Input: decoded, DurationMs: durationMs}

	trace.Success = err == nil && result != nil && result.Success
	trace.Observation = formatObservation(tool, result, err)
	if !trace.Success {
		switch {
		case err != nil:
			trace.Metadata["error"] = err.Error()
		case result != nil:
			trace.Metadata["error"] = result.Error
		default:
			trace.Metadata["error"] = "no result returned"
		}
		execution.Error = trace.Metadata["error"]
		errorType := categorizeError(trace.Metadata["error"])
		trace.Metadata["error_type"] = errorType
		trace.Metadata["prevention"] = generatePrevention(tool.Name(), errorType)
	}
	session.AddTrace(trace)
	e.log.Info().Str("trace", trace.String()).Int64("duration_ms", durationMs).Msg("react trace")

	if e.audit != nil {
		var outputBytes json.RawMessage
		var errStr *string
		if result != nil {
			outputBytes, _ = json.Marshal(result.Data)
			if result.Error != "" {
				errStr = &result.Error
			}
		}
		if err != nil {
			msg := err.Error()
			errStr = &msg
		}
		e.audit.Log(ctx, &AuditEntry{
			ID:         uuid.New().String(),
			UserID:     session.UserID,
			SessionID:  session.ID,
			RequestID:  session.ID,
			ParentID:   r.auditParentID,
			AgentName:  r.agentName,
			ToolName:   tool.Name(),
			ToolInput:  input,
			ToolOutput: outputBytes,
			Error:      errStr,
			DurationMs: durationMs,
			IsWriteOp:  tool.RequiresConfirmation(),
			Confirmed:  trace.Metadata["confirmed"] == "true",
			Timestamp:  startTime.Unix(),
		})
	}

	var block core.ContentBlock
	switch {
	case err != nil:
		block = core.NewToolResultBlock(blockID, err.Error(), true)
	case result == nil:
		block = core.NewToolResultBlock(blockID, "no result returned", true)
	case !result.Success:
		content := result.Error
		if result.Data != nil {
			if data, merr := json.Marshal(result.Data); merr == nil {
				content = result.Error + "\n" + string(data)
			}
		}
		block = core.NewToolResultBlock(blockID, content, true)
	default:
		execution.Result = result.Data
		resultBytes, _ := json.Marshal(result.Data)
		block = core.NewToolResultBlock(blockID, string(resultBytes), false)
	}
	r.toolsUsed = append(r.toolsUsed, execution)
	return block
}

// ExecuteTool executes a confirmed write operation outside the loop.
func (e *Engine) ExecuteTool(ctx context.Context, userID, toolName string, input json.RawMessage, confirmationID string) (*core.ToolResult, error) {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}
	return tool.Execute(ctx, &core.ToolParams{
		UserID:         userID,
		Input:          input,
		ConfirmationID: confirmationID,
		RequestID:      confirmationID,
	})
}

// createMessageStreaming handles streaming API calls.
func (e *Engine) createMessageStreaming(ctx context.Context, params anthropic.MessageNewParams, callback func(string, bool)) (*anthropic.Message, error) {
	stream := e.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			e.log.Debug().Err(err).Msg("stream accumulate")
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				callback(delta.Text, false)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

// GenerateIdempotencyKey derives a stable key for a user's tool call.
func GenerateIdempotencyKey(userID, tool string, input json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(input)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// formatObservation handles observation formatting with fallback
func formatObservation(tool core.Tool, result *core.ToolResult, err error) string {
	type ObservationFormatter interface {
		FormatObservation(result *core.ToolResult, err error) string
	}
	if formatter, ok := tool.(ObservationFormatter); ok {
		return formatter.FormatObservation(result, err)
	}

	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	if result == nil {
		return "No result returned"
	}
	if !result.Success {
		return fmt.Sprintf("Failed: %s", result.Error)
	}

	switch v := result.Data.(type) {
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
		if status, ok := v["status"].(string); ok {
			return fmt.Sprintf("Success: %s", status)
		}
		bytes, _ := json.Marshal(v)
		return string(bytes)
	case string:
		return v
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("Success: %v", v)
		}
		return string(bytes)
	}
}

// categorizeError maps error messages to error types for reflexion
func categorizeError(errMsg string) string {
	if errMsg == "" {
		return "unknown"
	}

	errLower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(errLower, "allowance"):
		return "insufficient_allowance"
	case strings.Contains(errLower, "insufficient"), strings.Contains(errLower, "exceeds balance"),
		strings.Contains(errLower, "nothing available"):
		return "insufficient_balance"
	case strings.Contains(errLower, "reverted"):
		return "reverted"
	case strings.Contains(errLower, "rejected"), strings.Contains(errLower, "declined"), strings.Contains(errLower, "denied"):
		return "rejected"
	case strings.Contains(errLower, "already in progress"), strings.Contains(errLower, "busy"):
		return "busy"
	case strings.Contains(errLower, "not submitted"), strings.Contains(errLower, "loading"):
		return "not_ready"
	case strings.Contains(errLower, "no wallet"), strings.Contains(errLower, "not connected"):
		return "not_connected"
	case strings.Contains(errLower, "not found"), strings.Contains(errLower, "does not exist"):
		return "not_found"
	case strings.Contains(errLower, "invalid"), strings.Contains(errLower, "malformed"),
		strings.Contains(errLower, "must be"), strings.Contains(errLower, "unknown operation kind"):
		return "invalid_input"
	case strings.Contains(errLower, "unauthorized"), strings.Contains(errLower, "forbidden"):
		return "permission_denied"
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "timed out"), strings.Contains(errLower, "deadline"):
		return "timeout"
	case strings.Contains(errLower, "rate limit"), strings.Contains(errLower, "too many"):
		return "rate_limit"
	case strings.Contains(errLower, "network"), strings.Contains(errLower, "connection"):
		return "network_error"
	default:
		return "unknown"
	}
}

// generatePrevention suggests how to avoid this error in the future
func generatePrevention(action, errorType string) string {
	preventionMap := map[string]string{
		"deposit_to_vault:insufficient_balance":    "Check wallet balance with get_vault_position before depositing",
		"deposit_to_vault:insufficient_allowance":  "Retry the deposit; it approves the exact amount first",
		"mint_vault_shares:insufficient_balance":   "Preview the mint cost with preview_vault_operation and compare it to the wallet balance",
		"mint_vault_shares:not_ready":              "Preview the mint first so the token cost is known, then retry",
		"redeem_vault_shares:insufficient_balance": "Check share balance with get_vault_position before redeeming",
		"withdraw_from_vault:insufficient_balance": "Preview the withdraw to see the shares it burns and compare to the share balance",
		"withdraw_from_vault:reverted":             "Withdraw a smaller amount or redeem shares instead",
	}

	key := action + ":" + errorType
	if prevention, ok := preventionMap[key]; ok {
		return prevention
	}

	switch errorType {
	case "insufficient_balance":
		return "Check balances before attempting operation"
	case "insufficient_allowance":
		return "Make sure the approval settled before the action"
	case "reverted":
		return "Preview the operation and check balances before retrying"
	case "rejected":
		return "Ask the user before retrying a declined transaction"
	case "busy":
		return "Check get_operation_status and wait for the running operation to finish"
	case "not_ready":
		return "Wait a moment for quotes to load, then retry"
	case "not_connected":
		return "Ask the user to connect a wallet first"
	case "not_found":
		return "Verify the entity exists before referencing it"
	case "invalid_input":
		return "Validate input parameters before submission"
	case "rate_limit":
		return "Implement retry with backoff"
	case "timeout":
		return "Check get_operation_status before retrying; the transaction may still land"
	default:
		return "Review error message and adjust approach accordingly"
	}
}

// DefaultSystemPrompt is the default system prompt for the agent.
const DefaultSystemPrompt = `You are a helpful assistant for an ERC-4626 yield vault.

GUIDELINES:
- Be conversational and helpful
- Ask clarifying questions when the kind or amount is unclear
- Use tools when you have enough information
- Every deposit, mint, redeem, withdraw or faucet mint requires user confirmation

VAULT BASICS:
- deposit: pay an exact token amount, receive shares (approval first)
- mint: receive an exact share amount, pay tokens (approval first)
- redeem: burn an exact share amount, receive tokens
- withdraw: receive an exact token amount, burn shares
- Amounts are decimals with up to 6 places, a percentage like "25%", or "max"

REASONING PATTERN:
When using tools, include a "thought" field explaining your reasoning:
1. What you've verified (e.g., "Wallet holds 500 tokens, enough for a 100 token deposit")
2. Why you're taking this action (e.g., "User asked to deposit 100 tokens")
3. What you expect to happen (e.g., "Approval then deposit, about 95 shares received")

For operations that move funds, the thought field is REQUIRED.

Good thought examples:
- "User wants to deposit 100. Position shows 500 in the wallet; preview says 95 shares."
- "User asked to exit. Share balance is 80, redeeming max."

Bad thought examples:
- "Depositing" (too vague, doesn't explain reasoning)
- "User asked" (doesn't verify or explain decision)

AVAILABLE ACTIONS:
- Check the vault position, share premium and yield
- Preview any operation before submitting
- Deposit, mint, redeem and withdraw
- Check the status of a running operation
- Mint test tokens from the faucet`
