package memory

import (
	"fmt"
	"strings"

	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// OperationMemory records a vault operation that settled or failed.
type OperationMemory struct {
	base

	OperationID string
	Kind        string
	Amount      string
	Phase       string
	Error       string
	ApprovalTx  string
	ActionTx    string
}

// NewOperationMemory creates an OperationMemory from op.
func NewOperationMemory(ownerID string, op orchestrator.Operation) *OperationMemory {
	m := &OperationMemory{
		base: newBase(ownerID, "", map[string]interface{}{
			"kind":    string(op.Kind),
			"phase":   string(op.Phase),
			"success": op.Phase != orchestrator.PhaseFailed,
		}),
		OperationID: op.ID,
		Kind:        string(op.Kind),
		Amount:      vault.FormatAmount(op.Amount),
		Phase:       string(op.Phase),
		Error:       op.Error,
	}
	if op.ApprovalTx != nil {
		m.ApprovalTx = op.ApprovalTx.Hex()
	}
	if op.ActionTx != nil {
		m.ActionTx = op.ActionTx.Hex()
	}
	return m
}

// NewOperationMemoryFromStorage rebuilds an OperationMemory read from a store.
func NewOperationMemoryFromStorage(s Stored, content map[string]string) *OperationMemory {
	return &OperationMemory{
		base:        s.base(),
		OperationID: content["operation_id"],
		Kind:        content["kind"],
		Amount:      content["amount"],
		Phase:       content["phase"],
		Error:       content["error"],
		ApprovalTx:  content["approval_tx"],
		ActionTx:    content["action_tx"],
	}
}

func (o *OperationMemory) Type() string {
	return "operation"
}

func (o *OperationMemory) Content() interface{} {
	return map[string]string{
		"operation_id": o.OperationID,
		"kind":         o.Kind,
		"amount":       o.Amount,
		"phase":        o.Phase,
		"error":        o.Error,
		"approval_tx":  o.ApprovalTx,
		"action_tx":    o.ActionTx,
	}
}

func (o *OperationMemory) Format(ctx FormatContext) string {
	date := o.createdAt.Format("2006-01-02 15:04")
	if o.Phase == string(orchestrator.PhaseFailed) {
		line := fmt.Sprintf("[Operation failed] %s %s on %s", o.Kind, o.Amount, date)
		if o.Error != "" {
			line += fmt.Sprintf("\n  Error: %q", truncate(o.Error, ctx.MaxLength/2))
		}
		return line
	}
	line := fmt.Sprintf("[Operation settled] %s %s on %s", o.Kind, o.Amount, date)
	if o.ActionTx != "" {
		line += "\n  Tx: " + o.ActionTx
	}
	return line
}

func (o *OperationMemory) FormatForEmbedding() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vault %s of %s %s", o.Kind, o.Amount, o.Phase)
	if o.Error != "" {
		fmt.Fprintf(&b, ": %s", o.Error)
	}
	return b.String()
}
