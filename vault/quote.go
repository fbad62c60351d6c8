package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Quote is the advisory result of a preview simulation. It is never cached
// and never bound to a later submission.
type Quote struct {
	Kind  Kind
	Input *big.Int

	// Output is nil while the preview has not resolved.
	Output *big.Int

	// Loading is set while the simulation is outstanding.
	Loading bool
}

// ExchangeRate is output per unit of input in display units. It is undefined
// when the input is not positive or the output has not resolved.
func (q Quote) ExchangeRate() (float64, bool) {
	if q.Output == nil || q.Input == nil || q.Input.Sign() <= 0 {
		return 0, false
	}
	rate, _ := new(big.Rat).SetFrac(q.Output, q.Input).Float64()
	return rate, true
}

// Resolved reports whether the quote carries an output value.
func (q Quote) Resolved() bool {
	return q.Output != nil
}

// Previewer runs the vault's preview simulations.
type Previewer struct {
	chain Chain
	vault Contracts
}

// NewPreviewer creates a previewer against the given contracts.
func NewPreviewer(chain Chain, contracts Contracts) *Previewer {
	return &Previewer{chain: chain, vault: contracts}
}

// Preview simulates the counterpart amount for kind and amount. A pending
// read yields a quote with Loading set and no output; any other read
// failure is returned.
func (p *Previewer) Preview(ctx context.Context, kind Kind, amount *big.Int) (Quote, error) {
	q := Quote{Kind: kind, Input: amount}
	if amount == nil || amount.Sign() <= 0 {
		return q, nil
	}

	method := kind.PreviewMethod()
	if method == "" {
		return q, fmt.Errorf("preview: unknown kind %q", kind)
	}

	out, err := p.chain.Read(ctx, Call{
		Contract: p.vault.Vault,
		Method:   method,
		Args:     []interface{}{amount},
	})
	if errors.Is(err, ErrPending) {
		q.Loading = true
		return q, nil
	}
	if err != nil {
		return q, fmt.Errorf("%s: %w", method, err)
	}
	q.Output = out
	return q, nil
}
