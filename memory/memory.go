package memory

import (
	"context"
	"time"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
)

// Memory is one stored item. TraceMemory, ConversationMemory and
// OperationMemory implement it; each controls its own content and how it
// is rendered into the prompt.
type Memory interface {
	ID() string
	OwnerID() string        // User ID (empty = global memory)
	ConversationID() string // Empty when not tied to a conversation
	Type() string           // "trace", "conversation", "operation"

	Content() interface{}
	Metadata() map[string]interface{}

	CreatedAt() time.Time

	// Format renders the memory for prompt injection.
	Format(ctx FormatContext) string
	// FormatForEmbedding is the text the embedding is computed from.
	FormatForEmbedding() string
	Embedding() []float32
	SetEmbedding([]float32)
}

// FormatContext is passed to Memory.Format.
type FormatContext struct {
	UserID    string // Current user
	Query     string // Current query being answered
	MaxLength int    // Max characters for this memory's output
}

// Manager is the interface the engine uses. It retrieves before a run and
// records after it; implementations decide what is worth keeping.
type Manager interface {
	// Retrieve returns memories relevant to userMessage formatted for the
	// system prompt, or "" when there are none.
	Retrieve(ctx context.Context, userID string, userMessage string) (string, error)

	// RecordTraces stores the ReAct traces of a finished run.
	RecordTraces(ctx context.Context, userID string, traces []*core.Trace) error

	// RecordConversation stores a user message and the agent's reply.
	// Trivial exchanges may be dropped.
	RecordConversation(ctx context.Context, userID string, userMessage string, assistantResponse string) error

	// RecordOperation stores a vault operation that reached a final phase.
	RecordOperation(ctx context.Context, userID string, op orchestrator.Operation) error
}

// Store is the vector storage backend.
type Store interface {
	// Store saves a memory. Its embedding must be set.
	Store(ctx context.Context, mem Memory) error

	// Query returns the user's memories closest to embedding, most similar
	// first.
	Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Memory, error)

	// Get returns one memory of ownerID.
	Get(ctx context.Context, ownerID string, memoryID string) (Memory, error)

	// Delete removes a memory permanently.
	Delete(ctx context.Context, ownerID string, memoryID string) error

	Close() error
}

// Embedder converts text to vectors. Only the Manager uses it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
