package memory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

const defaultRecorderBuffer = 16

// OperationRecorder records every operation of a session once it is done.
type OperationRecorder struct {
	manager Manager
	session *orchestrator.Session
	userID  string
	buffer  int
	log     zerolog.Logger
}

// RecorderOption configures an OperationRecorder.
type RecorderOption func(*OperationRecorder)

// WithWatchBuffer sets the size of the recorder's session subscription.
func WithWatchBuffer(n int) RecorderOption {
	return func(r *OperationRecorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// NewOperationRecorder creates a recorder storing userID's operations.
func NewOperationRecorder(manager Manager, session *orchestrator.Session, userID string, opts ...RecorderOption) *OperationRecorder {
	r := &OperationRecorder{
		manager: manager,
		session: session,
		userID:  userID,
		buffer:  defaultRecorderBuffer,
		log:     logger.GetForComponent("memory"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run watches the session until ctx ends. The subscription drops states
// while a record is in progress, so every wake-up also checks the latest
// operation of each kind.
func (r *OperationRecorder) Run(ctx context.Context) error {
	states, cancel := r.session.Watch(r.buffer)
	defer cancel()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			r.record(ctx, st.Operation, seen)
			for _, kind := range vault.Kinds {
				latest, err := r.session.Status(kind)
				if err != nil {
					continue
				}
				r.record(ctx, latest.Operation, seen)
			}
		}
	}
}

func (r *OperationRecorder) record(ctx context.Context, op *orchestrator.Operation, seen map[string]bool) {
	if op == nil || !op.Done() || seen[op.ID] {
		return
	}
	seen[op.ID] = true
	if err := r.manager.RecordOperation(ctx, r.userID, *op); err != nil {
		r.log.Warn().Err(err).Str("op", op.ID).Msg("operation not recorded")
	}
}
