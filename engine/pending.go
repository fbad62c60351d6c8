package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

// DefaultConfirmationTTL is how long a write waits for the user's answer.
const DefaultConfirmationTTL = 10 * time.Minute

var (
	// ErrConfirmationNotFound is returned for unknown or expired confirmations.
	ErrConfirmationNotFound = errors.New("confirmation not found or expired")

	// ErrConfirmationOwner is returned when a user answers another user's
	// confirmation.
	ErrConfirmationOwner = errors.New("confirmation belongs to another user")
)

// PendingStore keeps actions awaiting confirmation with a TTL.
type PendingStore struct {
	mu    sync.Mutex
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewPendingStore creates a store whose entries expire after ttl.
func NewPendingStore(ttl time.Duration) (*PendingStore, error) {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create pending cache: %w", err)
	}
	return &PendingStore{cache: cache, ttl: ttl}, nil
}

// TTL returns the entry lifetime.
func (s *PendingStore) TTL() time.Duration {
	return s.ttl
}

// Put stores action until it expires.
func (s *PendingStore) Put(action *core.PendingAction) error {
	ttl := s.ttl
	if action.ExpiresAt > 0 {
		if d := time.Until(time.Unix(action.ExpiresAt, 0)); d > 0 && d < ttl {
			ttl = d
		}
	}
	if !s.cache.SetWithTTL(action.ID, action, 1, ttl) {
		return fmt.Errorf("pending store rejected %s", action.ID)
	}
	s.cache.Wait()
	return nil
}

// Get returns the action without removing it.
func (s *PendingStore) Get(id string) (*core.PendingAction, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	action, ok := v.(*core.PendingAction)
	if !ok || action.Expired(time.Now()) {
		return nil, false
	}
	return action, true
}

// Take removes and returns the action owned by userID. Each confirmation
// can be taken once.
func (s *PendingStore) Take(id, userID string) (*core.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.Get(id)
	if !ok {
		return nil, ErrConfirmationNotFound
	}
	if action.UserID != userID {
		return nil, ErrConfirmationOwner
	}
	s.cache.Del(id)
	s.cache.Wait()
	return action, nil
}

// Close releases the cache.
func (s *PendingStore) Close() {
	s.cache.Close()
}
