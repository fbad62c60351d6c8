package orchestrator

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Phase is the lifecycle position of an operation.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAwaitingApproval  Phase = "awaiting_approval"
	PhaseApprovalConfirmed Phase = "approval_confirmed"
	PhaseAwaitingAction    Phase = "awaiting_action"
	PhaseSettled           Phase = "settled"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseFailed
}

// EventType names an input to the controller's state machine.
type EventType string

const (
	EventSubmitted         EventType = "submitted"
	EventApprovalSubmitted EventType = "approval-submitted"
	EventApprovalConfirmed EventType = "approval-confirmed"
	EventActionSubmitted   EventType = "action-submitted"
	EventActionConfirmed   EventType = "action-confirmed"
	EventSettleCompleted   EventType = "settle-completed"
	EventRejected          EventType = "rejected"
)

// Event is one entry of the controller queue. Events for an operation other
// than the current one are stale and dropped.
type Event struct {
	Type EventType
	OpID string
	Tx   common.Hash
	Err  error

	op    *Operation
	reply chan error
}

type transitionKey struct {
	from  Phase
	event EventType
}

// transitions lists every legal (phase, event) pair and its destination.
// Submitted is handled separately since it creates the operation.
var transitions = map[transitionKey]Phase{
	{PhaseAwaitingApproval, EventApprovalSubmitted}: PhaseAwaitingApproval,
	{PhaseAwaitingApproval, EventApprovalConfirmed}: PhaseApprovalConfirmed,
	{PhaseAwaitingApproval, EventRejected}:          PhaseFailed,
	{PhaseAwaitingAction, EventActionSubmitted}:     PhaseAwaitingAction,
	{PhaseAwaitingAction, EventActionConfirmed}:     PhaseSettled,
	{PhaseAwaitingAction, EventRejected}:            PhaseFailed,
	{PhaseSettled, EventSettleCompleted}:            PhaseSettled,
}

// Operation is one submitted vault operation. Values handed out by the
// controller are copies.
type Operation struct {
	ID     string     `json:"id"`
	Kind   vault.Kind `json:"kind"`
	Amount *big.Int   `json:"amount"`

	// Approval is the allowance granted before the action. Nil for kinds
	// that need none.
	Approval *big.Int `json:"approval,omitempty"`

	Owner      common.Address `json:"owner"`
	Phase      Phase          `json:"phase"`
	History    []Phase        `json:"history"`
	ApprovalTx *common.Hash   `json:"approval_tx,omitempty"`
	ActionTx   *common.Hash   `json:"action_tx,omitempty"`

	// Error is the first line of the failure that moved the operation to
	// PhaseFailed.
	Error string `json:"error,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Retired is set once settlement side effects have completed.
	Retired bool `json:"retired"`

	done chan struct{}
}

// Done reports whether the operation will not change again.
func (o *Operation) Done() bool {
	return o.Phase == PhaseFailed || o.Retired
}

func (o *Operation) clone() Operation {
	out := *o
	out.done = nil
	out.History = append([]Phase(nil), o.History...)
	if o.Amount != nil {
		out.Amount = new(big.Int).Set(o.Amount)
	}
	if o.Approval != nil {
		out.Approval = new(big.Int).Set(o.Approval)
	}
	if o.ApprovalTx != nil {
		tx := *o.ApprovalTx
		out.ApprovalTx = &tx
	}
	if o.ActionTx != nil {
		tx := *o.ActionTx
		out.ActionTx = &tx
	}
	return out
}

// State is what a controller reports to observers.
type State struct {
	Kind  vault.Kind `json:"kind"`
	Phase Phase      `json:"phase"`

	// Operation is the latest operation, nil before the first submit.
	Operation *Operation `json:"operation,omitempty"`
}

// InFlight reports whether a new submit would be refused.
func (s State) InFlight() bool {
	return s.Operation != nil && !s.Operation.Done()
}
