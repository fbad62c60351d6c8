// Package chromem implements memory.Store on the embedded chromem-go
// vector database.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/memory"
)

// reserved metadata keys written by the store itself.
var reserved = map[string]bool{
	"type":            true,
	"owner_id":        true,
	"conversation_id": true,
	"created_at":      true,
}

// Option configures a ChromemStore.
type Option func(*ChromemStore)

// WithMinSimilarity drops query results less similar than min.
func WithMinSimilarity(min float32) Option {
	return func(s *ChromemStore) {
		s.minSimilarity = min
	}
}

// ChromemStore keeps one chromem collection per user.
type ChromemStore struct {
	db            *chromem.DB
	collections   map[string]*chromem.Collection
	mu            sync.RWMutex
	minSimilarity float32
	log           zerolog.Logger
}

// New creates an in-memory store.
func New(opts ...Option) (*ChromemStore, error) {
	s := &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		log:         logger.GetForComponent("chromem"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChromemStore) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	name := "user_" + userID
	if userID == "" {
		name = "global"
	}
	// Embeddings are always supplied by the manager, so no embedding func.
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

// Store saves a memory with its embedding.
func (s *ChromemStore) Store(ctx context.Context, mem memory.Memory) error {
	if len(mem.Embedding()) == 0 {
		return fmt.Errorf("memory %s has no embedding", mem.ID())
	}
	col, err := s.collection(mem.OwnerID())
	if err != nil {
		return err
	}

	doc, err := toDocument(mem)
	if err != nil {
		return fmt.Errorf("serialize memory: %w", err)
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	s.log.Debug().Str("id", mem.ID()).Str("owner", mem.OwnerID()).Str("type", mem.Type()).Msg("memory stored")
	return nil
}

// Query retrieves the user's memories by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]memory.Memory, error) {
	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem refuses nResults above the collection size.
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, map[string]string{"owner_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	memories := make([]memory.Memory, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.minSimilarity {
			continue
		}
		mem, err := fromDocument(r.ID, r.Content, r.Metadata, r.Embedding)
		if err != nil {
			s.log.Warn().Err(err).Str("id", r.ID).Msg("skipping stored memory")
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// Get retrieves one memory of ownerID.
func (s *ChromemStore) Get(ctx context.Context, ownerID string, memoryID string) (memory.Memory, error) {
	col, err := s.collection(ownerID)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
}

// Delete removes a memory of ownerID.
func (s *ChromemStore) Delete(ctx context.Context, ownerID string, memoryID string) error {
	col, err := s.collection(ownerID)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, memoryID)
}

// Close is a no-op; the database lives in memory.
func (s *ChromemStore) Close() error {
	return nil
}

func toDocument(mem memory.Memory) (chromem.Document, error) {
	content, err := json.Marshal(mem.Content())
	if err != nil {
		return chromem.Document{}, fmt.Errorf("marshal content: %w", err)
	}

	metadata := map[string]string{
		"type":            mem.Type(),
		"owner_id":        mem.OwnerID(),
		"conversation_id": mem.ConversationID(),
		"created_at":      mem.CreatedAt().Format(time.RFC3339),
	}
	for k, v := range mem.Metadata() {
		if reserved[k] {
			continue
		}
		if str, ok := v.(string); ok {
			metadata[k] = str
		} else if b, err := json.Marshal(v); err == nil {
			metadata[k] = string(b)
		}
	}

	return chromem.Document{
		ID:        mem.ID(),
		Content:   string(content),
		Embedding: mem.Embedding(),
		Metadata:  metadata,
	}, nil
}

func fromDocument(id, content string, metadata map[string]string, embedding []float32) (memory.Memory, error) {
	createdAt, _ := time.Parse(time.RFC3339, metadata["created_at"])
	stored := memory.Stored{
		ID:             id,
		OwnerID:        metadata["owner_id"],
		ConversationID: metadata["conversation_id"],
		CreatedAt:      createdAt,
		Embedding:      embedding,
		Metadata:       make(map[string]interface{}),
	}
	for k, v := range metadata {
		if !reserved[k] {
			stored.Metadata[k] = v
		}
	}

	switch t := metadata["type"]; t {
	case "trace":
		var c struct {
			Thought     string `json:"thought"`
			Action      string `json:"action"`
			Observation string `json:"observation"`
			Success     bool   `json:"success"`
		}
		if err := json.Unmarshal([]byte(content), &c); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
		return memory.NewTraceMemoryFromStorage(stored, c.Thought, c.Action, c.Observation, c.Success), nil
	case "conversation":
		var c map[string]string
		if err := json.Unmarshal([]byte(content), &c); err != nil {
			return nil, fmt.Errorf("unmarshal conversation: %w", err)
		}
		return memory.NewConversationMemoryFromStorage(stored, c["user_message"], c["response"]), nil
	case "operation":
		var c map[string]string
		if err := json.Unmarshal([]byte(content), &c); err != nil {
			return nil, fmt.Errorf("unmarshal operation: %w", err)
		}
		return memory.NewOperationMemoryFromStorage(stored, c), nil
	default:
		return nil, fmt.Errorf("unknown memory type: %s", strings.TrimSpace(t))
	}
}
