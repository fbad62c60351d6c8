package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
)

// contextualActions are read tools whose single traces are still worth
// keeping.
var contextualActions = map[string]bool{
	"get_operation_status": true,
	"get_wallet_profile":   true,
	"get_transactions":     true,
}

// SimpleManager is the bundled Manager: embed, store, query, format.
type SimpleManager struct {
	store    Store
	embedder Embedder
	config   *Config
	log      zerolog.Logger
}

// NewSimpleManager creates a new SimpleManager.
func NewSimpleManager(store Store, embedder Embedder, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
		log:      logger.GetForComponent("memory"),
	}
}

// Retrieve finds relevant memories and returns formatted string.
func (m *SimpleManager) Retrieve(ctx context.Context, userID string, userMessage string) (string, error) {
	if !m.config.Enabled {
		return "", nil
	}

	embedding, err := m.embedder.Embed(ctx, userMessage)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	memories, err := m.store.Query(ctx, userID, embedding, m.config.maxResults())
	if err != nil {
		return "", fmt.Errorf("query store: %w", err)
	}

	m.log.Debug().Str("user_id", userID).Int("count", len(memories)).
		Str("query", truncate(userMessage, 50)).Msg("memories retrieved")
	if len(memories) == 0 {
		return "", nil
	}
	return m.formatMemories(memories, userID, userMessage), nil
}

// RecordTraces stores the traces worth keeping.
func (m *SimpleManager) RecordTraces(ctx context.Context, userID string, traces []*core.Trace) error {
	if !m.config.Enabled {
		return nil
	}

	storable := m.filterStorableTraces(traces)
	if len(storable) == 0 {
		return nil
	}

	stored := 0
	for _, trace := range storable {
		if err := m.save(ctx, NewTraceMemory(userID, trace.SessionID, trace)); err != nil {
			m.log.Warn().Err(err).Str("action", trace.Action).Msg("trace not stored")
			continue
		}
		stored++
	}
	m.log.Debug().Int("stored", stored).Int("traces", len(traces)).Msg("traces recorded")
	return nil
}

// RecordConversation stores the exchange unless the user message is too
// short to carry context.
func (m *SimpleManager) RecordConversation(ctx context.Context, userID string, userMessage string, assistantResponse string) error {
	if !m.config.Enabled {
		return nil
	}
	if len(strings.TrimSpace(userMessage)) < m.config.MinConversationLength || assistantResponse == "" {
		return nil
	}
	return m.save(ctx, NewConversationMemory(userID, userMessage, assistantResponse))
}

// RecordOperation stores a settled or failed operation. Operations still
// in flight are ignored.
func (m *SimpleManager) RecordOperation(ctx context.Context, userID string, op orchestrator.Operation) error {
	if !m.config.Enabled || !op.Phase.Terminal() {
		return nil
	}
	return m.save(ctx, NewOperationMemory(userID, op))
}

func (m *SimpleManager) save(ctx context.Context, mem Memory) error {
	embedding, err := m.embedder.Embed(ctx, mem.FormatForEmbedding())
	if err != nil {
		return fmt.Errorf("embed %s: %w", mem.Type(), err)
	}
	mem.SetEmbedding(embedding)
	if err := m.store.Store(ctx, mem); err != nil {
		return fmt.Errorf("store %s: %w", mem.Type(), err)
	}
	return nil
}

func (m *SimpleManager) formatMemories(memories []Memory, userID string, query string) string {
	parts := []string{"=== RELEVANT PAST ACTIONS ===\n"}

	maxLength := 2000 / len(memories)
	if maxLength < 100 {
		maxLength = 100
	}
	for i, mem := range memories {
		formatted := mem.Format(FormatContext{
			UserID:    userID,
			Query:     query,
			MaxLength: maxLength,
		})
		parts = append(parts, fmt.Sprintf("%d. %s\n", i+1, formatted))
	}
	return strings.Join(parts, "\n")
}

// filterStorableTraces keeps multi-step runs, failures, confirmed writes,
// contextual reads and traces with real reasoning. Lone trivial reads such
// as a position check are dropped.
func (m *SimpleManager) filterStorableTraces(traces []*core.Trace) []*core.Trace {
	if len(traces) > 1 {
		return traces
	}
	if len(traces) == 0 {
		return nil
	}

	trace := traces[0]
	switch {
	case !trace.Success:
		return traces
	case trace.Metadata["confirmed"] == "true":
		return traces
	case contextualActions[trace.Action]:
		return traces
	case len(trace.Thought) > 30:
		return traces
	}
	return nil
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles the memory system. Default: false.
	Enabled bool

	// MaxResults caps memories injected per run. Default: 10.
	MaxResults int

	// MinConversationLength is the shortest user message recorded as a
	// conversation memory. Default: 20.
	MinConversationLength int
}

func (c *Config) maxResults() int {
	if c.MaxResults <= 0 {
		return 10
	}
	return c.MaxResults
}

// DefaultConfig is used when NewSimpleManager gets a nil config.
var DefaultConfig = &Config{
	Enabled:               false,
	MaxResults:            10,
	MinConversationLength: 20,
}
