package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// HandlerFunc implements a tool call.
type HandlerFunc func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error)

// Builder assembles a core.Tool from a handler function.
//
//	tool := tools.New("get_vault_position").
//		Description("...").
//		Schema(tools.ObjectSchema(nil)).
//		Handler(fn).
//		Build()
type Builder struct {
	tool *funcTool
}

// New starts a tool named name.
func New(name string) *Builder {
	return &Builder{tool: &funcTool{
		name:   name,
		schema: ObjectSchema(map[string]interface{}{}),
	}}
}

// Description sets the description shown to the model.
func (b *Builder) Description(desc string) *Builder {
	b.tool.description = desc
	return b
}

// Schema sets the JSON Schema of the input.
func (b *Builder) Schema(schema map[string]interface{}) *Builder {
	b.tool.schema = schema
	return b
}

// RequiresConfirmation marks the tool as a write that the user approves.
func (b *Builder) RequiresConfirmation() *Builder {
	b.tool.confirm = true
	return b
}

// SummaryTemplate sets the template used for confirmation prompts.
func (b *Builder) SummaryTemplate(tmpl string) *Builder {
	b.tool.summary = tmpl
	return b
}

// Handler sets the function that runs the call.
func (b *Builder) Handler(fn HandlerFunc) *Builder {
	b.tool.handler = fn
	return b
}

// Build returns the tool. It panics when no handler was set.
func (b *Builder) Build() core.Tool {
	if b.tool.handler == nil {
		panic(fmt.Sprintf("tools: %s has no handler", b.tool.name))
	}
	t := *b.tool
	return &t
}

type funcTool struct {
	name        string
	description string
	schema      map[string]interface{}
	confirm     bool
	summary     string
	handler     HandlerFunc
}

func (t *funcTool) Name() string                   { return t.name }
func (t *funcTool) Description() string            { return t.description }
func (t *funcTool) Schema() map[string]interface{} { return t.schema }
func (t *funcTool) RequiresConfirmation() bool     { return t.confirm }

func (t *funcTool) GetSummary(input json.RawMessage) string {
	return core.RenderSummary(t.summary, input, t.name)
}

func (t *funcTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	return t.handler(ctx, params)
}

// Failure is a ToolResult that reports msg back to the model.
func Failure(format string, args ...interface{}) *core.ToolResult {
	return &core.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Success wraps data in a successful ToolResult.
func Success(data interface{}) *core.ToolResult {
	return &core.ToolResult{Success: true, Data: data}
}
