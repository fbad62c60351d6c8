package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// TraceMemory stores one thought-action-observation cycle.
type TraceMemory struct {
	base

	Thought     string
	Action      string
	Observation string
	Success     bool
}

// base carries the fields every memory type shares.
type base struct {
	id             string
	ownerID        string
	conversationID string
	createdAt      time.Time
	embedding      []float32
	metadata       map[string]interface{}
}

func newBase(ownerID, conversationID string, metadata map[string]interface{}) base {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return base{
		id:             uuid.New().String(),
		ownerID:        ownerID,
		conversationID: conversationID,
		createdAt:      time.Now(),
		metadata:       metadata,
	}
}

func (b *base) ID() string                       { return b.id }
func (b *base) OwnerID() string                  { return b.ownerID }
func (b *base) ConversationID() string           { return b.conversationID }
func (b *base) Metadata() map[string]interface{} { return b.metadata }
func (b *base) CreatedAt() time.Time             { return b.createdAt }
func (b *base) Embedding() []float32             { return b.embedding }
func (b *base) SetEmbedding(emb []float32)       { b.embedding = emb }

// Stored carries the shared fields of a memory read back from a store.
type Stored struct {
	ID             string
	OwnerID        string
	ConversationID string
	CreatedAt      time.Time
	Embedding      []float32
	Metadata       map[string]interface{}
}

func (s Stored) base() base {
	b := base{
		id:             s.ID,
		ownerID:        s.OwnerID,
		conversationID: s.ConversationID,
		createdAt:      s.CreatedAt,
		embedding:      s.Embedding,
		metadata:       s.Metadata,
	}
	if b.metadata == nil {
		b.metadata = make(map[string]interface{})
	}
	return b
}

// NewTraceMemory creates a TraceMemory from a core.Trace.
func NewTraceMemory(ownerID string, conversationID string, trace *core.Trace) *TraceMemory {
	metadata := map[string]interface{}{
		"action":     trace.Action,
		"success":    trace.Success,
		"importance": assessTraceImportance(trace),
	}
	for k, v := range trace.Metadata {
		metadata[k] = v
	}
	return &TraceMemory{
		base:        newBase(ownerID, conversationID, metadata),
		Thought:     trace.Thought,
		Action:      trace.Action,
		Observation: trace.Observation,
		Success:     trace.Success,
	}
}

// NewTraceMemoryFromStorage rebuilds a TraceMemory read from a store.
func NewTraceMemoryFromStorage(s Stored, thought, action, observation string, success bool) *TraceMemory {
	return &TraceMemory{
		base:        s.base(),
		Thought:     thought,
		Action:      action,
		Observation: observation,
		Success:     success,
	}
}

func (t *TraceMemory) Type() string {
	return "trace"
}

func (t *TraceMemory) Content() interface{} {
	return map[string]interface{}{
		"thought":     t.Thought,
		"action":      t.Action,
		"observation": t.Observation,
		"success":     t.Success,
	}
}

// Format renders the trace with its outcome, and the prevention hint for
// failures.
func (t *TraceMemory) Format(ctx FormatContext) string {
	status := "Success"
	if !t.Success {
		status = "Failed"
	}
	parts := []string{fmt.Sprintf("[%s] %s", status, t.Action)}

	if len(t.Thought) > 0 {
		parts = append(parts, fmt.Sprintf("  Thought: %q", truncate(t.Thought, ctx.MaxLength/4)))
	}
	if len(t.Observation) > 0 {
		parts = append(parts, fmt.Sprintf("  Observation: %q", truncate(t.Observation, ctx.MaxLength/2)))
	}
	if !t.Success {
		if prevention, ok := t.metadata["prevention"]; ok {
			parts = append(parts, fmt.Sprintf("  Prevention: %s", prevention))
		}
	}
	return strings.Join(parts, "\n")
}

func (t *TraceMemory) FormatForEmbedding() string {
	return fmt.Sprintf("Thought: %s\nAction: %s\nObservation: %s",
		t.Thought, t.Action, t.Observation)
}

// assessTraceImportance scores a trace in [0, 1]. Failures and confirmed
// writes score higher.
func assessTraceImportance(trace *core.Trace) float64 {
	importance := 0.5
	if !trace.Success {
		importance += 0.3
	}
	if trace.Metadata["confirmed"] == "true" {
		importance += 0.2
	}
	if len(trace.Thought) > 50 {
		importance += 0.1
	}
	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

// truncate cuts s to maxLen, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
