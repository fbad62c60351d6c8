package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/metrics"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

var (
	// ErrBusy is returned when an operation of the same kind is in flight.
	ErrBusy = errors.New("operation already in flight")

	// ErrInclusionTimeout fails an operation whose transaction was not
	// included within the configured timeout.
	ErrInclusionTimeout = errors.New("transaction not included before timeout")

	// ErrUnknownOperation is returned by Await for an ID that is not the
	// controller's latest operation.
	ErrUnknownOperation = errors.New("unknown operation")
)

// SettleFunc runs once an operation's action is included. Its error is
// logged; the operation still settles.
type SettleFunc func(ctx context.Context, op Operation) error

// Request is a submit request. Amount and Account are frozen into the
// operation for its whole lifetime.
type Request struct {
	Account common.Address
	Amount  *big.Int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = l
	}
}

// WithMetrics sets the collectors; nil disables metrics.
func WithMetrics(m *metrics.VaultMetrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithInclusionTimeout fails an operation when a transaction is not
// included within d. Zero waits forever.
func WithInclusionTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.inclusionTimeout = d
	}
}

// WithSettle sets the hook run after the action is included.
func WithSettle(fn SettleFunc) ControllerOption {
	return func(c *Controller) {
		c.settle = fn
	}
}

// WithObserver registers a callback invoked from the event loop after every
// transition. It must not block.
func WithObserver(fn func(State)) ControllerOption {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// Controller drives operations of one kind through the approve-then-act
// state machine. All state changes happen on the Run goroutine; chain calls
// run as commands that post their outcome back as events.
type Controller struct {
	kind      vault.Kind
	chain     vault.Chain
	contracts vault.Contracts
	gate      *Gate

	log              zerolog.Logger
	metrics          *metrics.VaultMetrics
	inclusionTimeout time.Duration
	settle           SettleFunc
	observers        []func(State)

	events chan Event

	mu sync.RWMutex
	op *Operation
}

// NewController creates a controller for kind.
func NewController(kind vault.Kind, chain vault.Chain, contracts vault.Contracts, opts ...ControllerOption) *Controller {
	c := &Controller{
		kind:      kind,
		chain:     chain,
		contracts: contracts,
		gate:      NewGate(vault.NewPreviewer(chain, contracts)),
		log:       logger.GetForComponent("controller"),
		metrics:   metrics.Vault(),
		events:    make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("kind", string(kind)).Logger()
	return c
}

// Submit starts an operation. It is a silent no-op, returning an empty ID
// and nil error, when the account is unset, the amount is not positive, or
// a mint allowance cannot be priced yet. Run must be active.
func (c *Controller) Submit(ctx context.Context, req Request) (string, error) {
	if req.Account == (common.Address{}) || req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", nil
	}
	if c.State().InFlight() {
		return "", ErrBusy
	}

	amount := new(big.Int).Set(req.Amount)
	approval, ready, err := c.gate.Required(ctx, c.kind, amount)
	if err != nil {
		return "", err
	}
	if !ready {
		c.log.Debug().Msg("allowance preview unresolved, submit dropped")
		return "", nil
	}

	now := time.Now()
	op := &Operation{
		ID:          uuid.New().String(),
		Kind:        c.kind,
		Amount:      amount,
		Approval:    approval,
		Owner:       req.Account,
		Phase:       PhaseIdle,
		History:     []Phase{PhaseIdle},
		SubmittedAt: now,
		UpdatedAt:   now,
		done:        make(chan struct{}),
	}

	reply := make(chan error, 1)
	ev := Event{Type: EventSubmitted, OpID: op.ID, op: op, reply: reply}
	select {
	case c.events <- ev:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case err := <-reply:
		if err != nil {
			return "", err
		}
		return op.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// State returns the controller phase and a copy of the latest operation.
// The phase is idle before the first submit and once a settled operation
// has retired; a failed operation keeps the controller failed until the
// next submit.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{Kind: c.kind, Phase: PhaseIdle}
	if c.op == nil {
		return s
	}
	op := c.op.clone()
	s.Operation = &op
	if !op.Retired {
		s.Phase = op.Phase
	}
	return s
}

// Await blocks until the operation id is done or ctx ends.
func (c *Controller) Await(ctx context.Context, id string) (Operation, error) {
	c.mu.RLock()
	op := c.op
	c.mu.RUnlock()
	if op == nil || op.ID != id {
		return Operation{}, ErrUnknownOperation
	}

	select {
	case <-op.done:
	case <-ctx.Done():
		return c.snapshot(id), ctx.Err()
	}
	return c.snapshot(id), nil
}

func (c *Controller) snapshot(id string) Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.op == nil || c.op.ID != id {
		return Operation{}
	}
	return c.op.clone()
}

// Run consumes the event queue until ctx ends. Commands started by the loop
// share ctx.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Debug().Msg("controller started")
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("controller stopped")
			return nil
		case ev := <-c.events:
			c.apply(ctx, ev)
		}
	}
}

func (c *Controller) apply(ctx context.Context, ev Event) {
	c.mu.Lock()

	if ev.Type == EventSubmitted {
		if c.op != nil && !c.op.Done() {
			c.mu.Unlock()
			ev.reply <- ErrBusy
			return
		}
		c.op = ev.op
		op := c.op
		c.metrics.ObserveSubmitted(string(c.kind))
		c.log.Info().
			Str("op", op.ID).
			Str("amount", vault.FormatAmount(op.Amount)).
			Bool("gated", op.Approval != nil).
			Msg("operation submitted")

		if op.Approval != nil {
			c.enter(PhaseAwaitingApproval)
			go c.write(ctx, op.ID, approveCall(c.contracts, op.Approval), EventApprovalSubmitted)
		} else {
			c.enter(PhaseAwaitingAction)
			go c.write(ctx, op.ID, actionCall(c.contracts, c.kind, op.Amount, op.Owner), EventActionSubmitted)
		}
		c.mu.Unlock()
		ev.reply <- nil
		c.notify()
		return
	}

	op := c.op
	if op == nil || op.ID != ev.OpID {
		c.mu.Unlock()
		c.log.Debug().Str("op", ev.OpID).Str("event", string(ev.Type)).Msg("stale event dropped")
		return
	}
	next, ok := transitions[transitionKey{op.Phase, ev.Type}]
	if !ok {
		c.mu.Unlock()
		c.log.Warn().Str("op", op.ID).Str("phase", string(op.Phase)).Str("event", string(ev.Type)).Msg("event not valid in phase, dropped")
		return
	}

	switch ev.Type {
	case EventApprovalSubmitted:
		if op.ApprovalTx != nil {
			c.mu.Unlock()
			return
		}
		tx := ev.Tx
		op.ApprovalTx = &tx
		op.UpdatedAt = time.Now()
		c.log.Info().Str("op", op.ID).Str("tx", tx.Hex()).Msg("approval submitted")
		go c.await(ctx, op.ID, tx, EventApprovalConfirmed)

	case EventApprovalConfirmed:
		c.enter(next)
		// The action is issued only here, after the approval is included.
		c.enter(PhaseAwaitingAction)
		go c.write(ctx, op.ID, actionCall(c.contracts, c.kind, op.Amount, op.Owner), EventActionSubmitted)

	case EventActionSubmitted:
		if op.ActionTx != nil {
			c.mu.Unlock()
			return
		}
		tx := ev.Tx
		op.ActionTx = &tx
		op.UpdatedAt = time.Now()
		c.log.Info().Str("op", op.ID).Str("tx", tx.Hex()).Msg("action submitted")
		go c.await(ctx, op.ID, tx, EventActionConfirmed)

	case EventActionConfirmed:
		c.enter(next)
		c.metrics.ObserveSettled(string(c.kind), time.Since(op.SubmittedAt))
		go c.runSettle(ctx, op.clone())

	case EventSettleCompleted:
		if ev.Err != nil {
			c.log.Warn().Err(ev.Err).Str("op", op.ID).Msg("post-settlement refresh failed")
		}
		op.Retired = true
		op.UpdatedAt = time.Now()
		close(op.done)

	case EventRejected:
		stage := op.Phase
		op.Error = vault.FirstLine(ev.Err)
		c.enter(next)
		c.metrics.ObserveFailure(string(c.kind), string(stage))
		c.log.Warn().Str("op", op.ID).Str("stage", string(stage)).Str("error", op.Error).Msg("operation failed")
		close(op.done)
	}

	c.mu.Unlock()
	c.notify()
}

// enter moves the current operation to p. Callers hold c.mu.
func (c *Controller) enter(p Phase) {
	op := c.op
	op.Phase = p
	op.History = append(op.History, p)
	op.UpdatedAt = time.Now()
	c.metrics.ObserveTransition(string(c.kind), string(p))
	c.log.Info().Str("op", op.ID).Str("phase", string(p)).Msg("transition")
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	s := c.State()
	for _, fn := range c.observers {
		fn(s)
	}
}

// post delivers a command outcome to the loop. It gives up when the loop
// has stopped.
func (c *Controller) post(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Controller) write(ctx context.Context, opID string, call vault.Call, submitted EventType) {
	tx, err := c.chain.Write(ctx, call)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.post(ctx, Event{Type: EventRejected, OpID: opID, Err: err})
		return
	}
	c.post(ctx, Event{Type: submitted, OpID: opID, Tx: tx})
}

func (c *Controller) await(ctx context.Context, opID string, tx common.Hash, confirmed EventType) {
	waitCtx := ctx
	if c.inclusionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.inclusionTimeout)
		defer cancel()
	}

	receipt, err := c.chain.AwaitInclusion(waitCtx, tx)
	switch {
	case ctx.Err() != nil:
		return
	case err != nil && errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil:
		c.post(ctx, Event{Type: EventRejected, OpID: opID, Tx: tx, Err: ErrInclusionTimeout})
	case err != nil:
		c.post(ctx, Event{Type: EventRejected, OpID: opID, Tx: tx, Err: err})
	case receipt.Reverted:
		c.post(ctx, Event{Type: EventRejected, OpID: opID, Tx: tx, Err: revertError(receipt)})
	default:
		c.post(ctx, Event{Type: confirmed, OpID: opID, Tx: tx})
	}
}

func (c *Controller) runSettle(ctx context.Context, op Operation) {
	var err error
	if c.settle != nil {
		err = c.settle(ctx, op)
	}
	if ctx.Err() != nil {
		return
	}
	c.post(ctx, Event{Type: EventSettleCompleted, OpID: op.ID, Err: err})
}

func revertError(r vault.Receipt) error {
	if r.Message == "" {
		return vault.ErrReverted
	}
	return fmt.Errorf("%w: %s", vault.ErrReverted, r.Message)
}
