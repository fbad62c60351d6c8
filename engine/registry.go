package engine

import (
	"sort"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// ToolRegistry holds the tools an engine may call.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]core.Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]core.Tool)}
}

// Register adds tools, replacing any with the same name.
func (r *ToolRegistry) Register(tools ...core.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools sorted by name.
func (r *ToolRegistry) List() []core.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ToolFilter selects tools.
type ToolFilter func(core.Tool) bool

// FilterByNames selects tools whose name is listed.
func FilterByNames(names ...string) ToolFilter {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(t core.Tool) bool { return set[t.Name()] }
}

// ToAPITools converts every tool to its API definition.
func (r *ToolRegistry) ToAPITools() []anthropic.ToolUnionParam {
	return r.ToAPIToolsFiltered(nil)
}

// ToAPIToolsFiltered converts the tools accepted by filter.
func (r *ToolRegistry) ToAPIToolsFiltered(filter ToolFilter) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range r.List() {
		if filter != nil && !filter(t) {
			continue
		}
		out = append(out, toAPITool(t))
	}
	return out
}

func toAPITool(t core.Tool) anthropic.ToolUnionParam {
	schema := t.Schema()
	inputSchema := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	if req, ok := schema["required"].([]string); ok {
		inputSchema.Required = req
	}
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        t.Name(),
		Description: anthropic.String(t.Description()),
		InputSchema: inputSchema,
	}}
}
