package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Gate decides whether an operation needs an allowance first and for how much.
type Gate struct {
	previewer *vault.Previewer
}

// NewGate creates a gate that prices mint allowances through previewer.
func NewGate(previewer *vault.Previewer) *Gate {
	return &Gate{previewer: previewer}
}

// Required returns the allowance to grant before the action. A nil amount
// with ready set means the kind needs no approval. ready is false when the
// allowance depends on a preview that has not resolved; the submit must
// then be dropped.
func (g *Gate) Required(ctx context.Context, kind vault.Kind, amount *big.Int) (approval *big.Int, ready bool, err error) {
	switch kind {
	case vault.KindDeposit:
		return new(big.Int).Set(amount), true, nil
	case vault.KindMint:
		// Mint pulls the previewed asset cost, not the share count.
		q, err := g.previewer.Preview(ctx, kind, amount)
		if err != nil {
			return nil, false, fmt.Errorf("price mint allowance: %w", err)
		}
		if !q.Resolved() {
			return nil, false, nil
		}
		return q.Output, true, nil
	case vault.KindRedeem, vault.KindWithdraw:
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("unknown operation kind %q", kind)
}

func approveCall(c vault.Contracts, amount *big.Int) vault.Call {
	return vault.Call{
		Contract: c.Token,
		Method:   vault.MethodApprove,
		Args:     []interface{}{c.Vault, amount},
	}
}

// actionCall builds the vault call for kind. The account is both receiver
// and owner.
func actionCall(c vault.Contracts, kind vault.Kind, amount *big.Int, account common.Address) vault.Call {
	call := vault.Call{Contract: c.Vault}
	switch kind {
	case vault.KindDeposit:
		call.Method = vault.MethodDeposit
		call.Args = []interface{}{amount, account}
	case vault.KindMint:
		call.Method = vault.MethodMint
		call.Args = []interface{}{amount, account}
	case vault.KindRedeem:
		call.Method = vault.MethodRedeem
		call.Args = []interface{}{amount, account, account}
	case vault.KindWithdraw:
		call.Method = vault.MethodWithdraw
		call.Args = []interface{}{amount, account, account}
	}
	return call
}
