package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/tools"
)

// fakeAPI serves canned /v1/messages responses in order and records the
// request bodies.
type fakeAPI struct {
	mu        sync.Mutex
	responses []string
	requests  []map[string]interface{}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]interface{}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		f.mu.Unlock()
		http.Error(w, `{"type":"error","error":{"type":"api_error","message":"no response queued"}}`, http.StatusInternalServerError)
		return
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (f *fakeAPI) queue(responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *fakeAPI) request(i int) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func message(blocks ...string) string {
	content := "[" + join(blocks) + "]"
	return `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",` +
		`"content":` + content + `,"stop_reason":"end_turn","stop_sequence":null,` +
		`"usage":{"input_tokens":10,"output_tokens":5}}`
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func text(s string) string {
	b, _ := json.Marshal(map[string]string{"type": "text", "text": s})
	return string(b)
}

func toolUse(id, name string, input map[string]interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": input})
	return string(b)
}

type harness struct {
	api     *fakeAPI
	engine  *Engine
	pending *PendingStore
	reads   atomic.Int32
	writes  atomic.Int32
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{api: &fakeAPI{}}
	srv := httptest.NewServer(h.api)
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)

	registry := NewToolRegistry()
	registry.Register(
		tools.New("get_vault_position").
			Description("position").
			Handler(func(ctx context.Context, p *core.ToolParams) (*core.ToolResult, error) {
				h.reads.Add(1)
				return tools.Success(map[string]interface{}{"shares": "80.000000"}), nil
			}).
			Build(),
		tools.New("deposit_to_vault").
			Description("deposit").
			RequiresConfirmation().
			SummaryTemplate("Deposit {{.amount}} into the vault").
			Handler(func(ctx context.Context, p *core.ToolParams) (*core.ToolResult, error) {
				h.writes.Add(1)
				return tools.Success(map[string]interface{}{"message": "deposit settled"}), nil
			}).
			Build(),
	)

	store, err := NewPendingStore(time.Minute)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	h.pending = store

	h.engine = NewEngine(&client, registry, append([]Option{WithPendingStore(store)}, opts...)...)
	return h
}

func userInput(msg string) *Input {
	return &Input{
		UserMessage: msg,
		Context: &core.Context{
			UserID: "user1",
			Limits: &core.ExecutionLimits{MaxTurns: 5, CanConfirm: true},
		},
	}
}

// lastUserBlocks returns the content blocks of the last message of req.
func lastUserBlocks(t *testing.T, req map[string]interface{}) []map[string]interface{} {
	t.Helper()
	msgs, ok := req["messages"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1].(map[string]interface{})
	require.Equal(t, "user", last["role"])
	var out []map[string]interface{}
	for _, b := range last["content"].([]interface{}) {
		out = append(out, b.(map[string]interface{}))
	}
	return out
}

// resultText joins the text parts of a tool_result block.
func resultText(block map[string]interface{}) string {
	parts, _ := block["content"].([]interface{})
	out := ""
	for _, p := range parts {
		if m, ok := p.(map[string]interface{}); ok {
			s, _ := m["text"].(string)
			out += s
		}
	}
	return out
}

func TestRunCompletesWithText(t *testing.T) {
	h := newHarness(t)
	h.api.queue(message(text("Your vault is doing fine.")))

	out, err := h.engine.Run(context.Background(), userInput("how is my vault?"))
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)
	assert.Equal(t, "Your vault is doing fine.", out.Text)
	assert.Equal(t, 10, out.TokensUsed.InputTokens)
	assert.Equal(t, 5, out.TokensUsed.OutputTokens)
	require.Len(t, out.History, 2)
	assert.Equal(t, "user", out.History[0].Role)
	assert.Equal(t, "assistant", out.History[1].Role)

	req := h.api.request(0)
	assert.Equal(t, defaultModel, req["model"])
	system := req["system"].([]interface{})
	assert.Contains(t, system[0].(map[string]interface{})["text"], "ERC-4626")
}

func TestRunExecutesReadTools(t *testing.T) {
	h := newHarness(t)
	h.api.queue(
		message(toolUse("tu_1", "get_vault_position", map[string]interface{}{"thought": "check"})),
		message(text("You hold 80 shares.")),
	)

	out, err := h.engine.Run(context.Background(), userInput("how many shares?"))
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)
	assert.Equal(t, int32(1), h.reads.Load())
	require.Len(t, out.ToolsUsed, 1)
	assert.Equal(t, "get_vault_position", out.ToolsUsed[0].Tool)

	blocks := lastUserBlocks(t, h.api.request(1))
	require.Len(t, blocks, 1)
	assert.Equal(t, "tool_result", blocks[0]["type"])
	assert.Equal(t, "tu_1", blocks[0]["tool_use_id"])
}

func TestUnknownToolReportsError(t *testing.T) {
	h := newHarness(t)
	h.api.queue(
		message(toolUse("tu_1", "send_money", map[string]interface{}{})),
		message(text("I cannot do that.")),
	)

	out, err := h.engine.Run(context.Background(), userInput("send money"))
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)

	blocks := lastUserBlocks(t, h.api.request(1))
	require.Len(t, blocks, 1)
	assert.Equal(t, true, blocks[0]["is_error"])
}

func TestWriteToolRequiresThought(t *testing.T) {
	h := newHarness(t)
	h.api.queue(
		message(toolUse("tu_1", "deposit_to_vault", map[string]interface{}{"amount": "100"})),
		message(text("Let me explain first.")),
	)

	out, err := h.engine.Run(context.Background(), userInput("deposit 100"))
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)
	assert.Equal(t, int32(0), h.writes.Load())

	blocks := lastUserBlocks(t, h.api.request(1))
	require.Len(t, blocks, 1)
	assert.Equal(t, true, blocks[0]["is_error"])
	assert.Contains(t, resultText(blocks[0]), "thought")
}

func TestWriteToolWaitsForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.api.queue(message(
		text("Checking, then depositing."),
		toolUse("tu_1", "get_vault_position", map[string]interface{}{"thought": "check"}),
		toolUse("tu_2", "deposit_to_vault", map[string]interface{}{"thought": "User asked to deposit 100", "amount": "100"}),
		toolUse("tu_3", "get_vault_position", map[string]interface{}{"thought": "check again"}),
	))

	out, err := h.engine.Run(context.Background(), userInput("deposit 100"))
	require.NoError(t, err)
	require.Equal(t, OutputConfirmationNeeded, out.Type)
	assert.Equal(t, int32(1), h.reads.Load())
	assert.Equal(t, int32(0), h.writes.Load())

	action := out.PendingAction
	require.NotNil(t, action)
	assert.Equal(t, "deposit_to_vault", action.Tool)
	assert.Equal(t, "tu_2", action.BlockID)
	assert.Equal(t, "Deposit 100 into the vault", action.Summary)
	assert.Equal(t, "user1", action.UserID)
	require.Len(t, action.PriorResults, 2)
	assert.Equal(t, "tu_1", action.PriorResults[0].ToolUseID)
	assert.Equal(t, "tu_3", action.PriorResults[1].ToolUseID)
	assert.True(t, action.PriorResults[1].IsError)

	_, ok := h.pending.Get(action.ID)
	assert.True(t, ok)

	// Confirm resumes with the stored history.
	h.api.queue(message(text("Deposited 100.")))
	confirmed, err := h.engine.Confirm(context.Background(), &Input{
		Context: userInput("").Context,
		History: out.History,
	}, action.ID)
	require.NoError(t, err)
	require.Equal(t, OutputComplete, confirmed.Type)
	assert.Equal(t, "Deposited 100.", confirmed.Text)
	assert.Equal(t, int32(1), h.writes.Load())

	blocks := lastUserBlocks(t, h.api.request(1))
	require.Len(t, blocks, 3)
	ids := []interface{}{blocks[0]["tool_use_id"], blocks[1]["tool_use_id"], blocks[2]["tool_use_id"]}
	assert.ElementsMatch(t, []interface{}{"tu_1", "tu_2", "tu_3"}, ids)

	// A confirmation can be used once.
	_, err = h.engine.Confirm(context.Background(), &Input{Context: userInput("").Context}, action.ID)
	assert.ErrorIs(t, err, ErrConfirmationNotFound)
}

func TestConfirmRejectsOtherUser(t *testing.T) {
	h := newHarness(t)
	h.api.queue(message(toolUse("tu_1", "deposit_to_vault", map[string]interface{}{"thought": "deposit as asked", "amount": "5"})))

	out, err := h.engine.Run(context.Background(), userInput("deposit 5"))
	require.NoError(t, err)
	require.Equal(t, OutputConfirmationNeeded, out.Type)

	_, err = h.engine.Confirm(context.Background(), &Input{Context: &core.Context{UserID: "mallory"}}, out.PendingAction.ID)
	assert.ErrorIs(t, err, ErrConfirmationOwner)
	assert.Equal(t, int32(0), h.writes.Load())
}

func TestCancelClosesTheTurn(t *testing.T) {
	h := newHarness(t)
	h.api.queue(message(
		toolUse("tu_1", "get_vault_position", map[string]interface{}{"thought": "check"}),
		toolUse("tu_2", "deposit_to_vault", map[string]interface{}{"thought": "deposit as asked", "amount": "5"}),
	))

	out, err := h.engine.Run(context.Background(), userInput("deposit 5"))
	require.NoError(t, err)
	require.Equal(t, OutputConfirmationNeeded, out.Type)

	msg, err := h.engine.Cancel("user1", out.PendingAction.ID)
	require.NoError(t, err)
	assert.Equal(t, "user", msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "tu_1", msg.Content[0].ToolUseID)
	assert.Equal(t, "tu_2", msg.Content[1].ToolUseID)
	assert.True(t, msg.Content[1].IsError)
	assert.Equal(t, int32(0), h.writes.Load())

	_, err = h.engine.Cancel("user1", out.PendingAction.ID)
	assert.ErrorIs(t, err, ErrConfirmationNotFound)
}

func TestConfirmationDisabledBlocksWrites(t *testing.T) {
	h := newHarness(t)
	h.api.queue(
		message(toolUse("tu_1", "deposit_to_vault", map[string]interface{}{"thought": "deposit as asked", "amount": "5"})),
		message(text("I cannot deposit from here.")),
	)

	in := userInput("deposit 5")
	in.Context.Limits.CanConfirm = false
	out, err := h.engine.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)
	assert.Equal(t, int32(0), h.writes.Load())

	blocks := lastUserBlocks(t, h.api.request(1))
	assert.Contains(t, resultText(blocks[0]), "requires user confirmation")
}

func TestMaxTurnsExceeded(t *testing.T) {
	h := newHarness(t)
	loopForever := message(toolUse("tu_1", "get_vault_position", map[string]interface{}{"thought": "again"}))
	h.api.queue(loopForever, loopForever)

	in := userInput("loop")
	in.Context.Limits.MaxTurns = 2
	out, err := h.engine.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, OutputError, out.Type)
	assert.Contains(t, out.Error.Error(), "maximum turns")
	assert.Equal(t, 2, h.api.count())
}

func TestGuardrailsBlockRun(t *testing.T) {
	g := NewRateLimitGuardrails(RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	h := newHarness(t, WithGuardrails(g))
	h.api.queue(message(text("ok")))

	out, err := h.engine.Run(context.Background(), userInput("first"))
	require.NoError(t, err)
	require.Equal(t, OutputComplete, out.Type)

	out, err = h.engine.Run(context.Background(), userInput("second"))
	require.NoError(t, err)
	require.Equal(t, OutputError, out.Type)
	assert.Contains(t, out.Error.Error(), "rate limit")
	assert.Equal(t, 1, h.api.count())
}

func TestAPIErrorIsReturned(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.Run(context.Background(), userInput("hello"))
	require.Error(t, err)
	require.NotNil(t, out)
	assert.Equal(t, OutputError, out.Type)
}

func TestCategorizeError(t *testing.T) {
	cases := map[string]string{
		"":                                      "unknown",
		"ERC20: insufficient allowance":         "insufficient_allowance",
		"transfer amount exceeds balance":       "insufficient_balance",
		"transaction reverted: out of gas":      "reverted",
		"user rejected the request":             "rejected",
		"a deposit is already in progress":      "busy",
		"mint was not submitted: loading":       "not_ready",
		"no wallet connected":                   "not_connected",
		"amount must be positive":               "invalid_input",
		"context deadline exceeded":             "timeout",
		"429 too many requests":                 "rate_limit",
		"connection refused":                    "network_error",
		"something else entirely went sideways": "unknown",
	}
	for msg, want := range cases {
		assert.Equal(t, want, categorizeError(msg), msg)
	}
}

func TestGeneratePrevention(t *testing.T) {
	assert.Equal(t, "Withdraw a smaller amount or redeem shares instead",
		generatePrevention("withdraw_from_vault", "reverted"))
	assert.Equal(t, "Ask the user to connect a wallet first",
		generatePrevention("deposit_to_vault", "not_connected"))
	assert.Equal(t, "Review error message and adjust approach accordingly",
		generatePrevention("x", "unknown"))
}

func TestGenerateIdempotencyKey(t *testing.T) {
	in := json.RawMessage(`{"amount":"5"}`)
	a := GenerateIdempotencyKey("u1", "deposit_to_vault", in)
	assert.Len(t, a, 32)
	assert.Equal(t, a, GenerateIdempotencyKey("u1", "deposit_to_vault", in))
	assert.NotEqual(t, a, GenerateIdempotencyKey("u2", "deposit_to_vault", in))
	assert.NotEqual(t, a, GenerateIdempotencyKey("u1", "withdraw_from_vault", in))
}
