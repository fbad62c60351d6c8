package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Reader performs the dependent reads behind a Snapshot.
type Reader struct {
	chain     Chain
	contracts Contracts
}

// NewReader creates a reader for the given contracts.
func NewReader(chain Chain, contracts Contracts) *Reader {
	return &Reader{chain: chain, contracts: contracts}
}

// Snapshot reads balances and vault totals for account. Independent reads
// run concurrently; convertToAssets follows once the share balance is known.
// A pending read leaves its field nil, and a pending share balance leaves
// ConvertedAssets nil too. Other read failures are joined into
// the returned error alongside whatever did resolve.
func (r *Reader) Snapshot(ctx context.Context, account common.Address) (Snapshot, error) {
	snap := Snapshot{}
	calls := []struct {
		dst  **big.Int
		call Call
	}{
		{&snap.WalletBalance, Call{Contract: r.contracts.Token, Method: MethodBalanceOf, Args: []interface{}{account}}},
		{&snap.Shares, Call{Contract: r.contracts.Vault, Method: MethodBalanceOf, Args: []interface{}{account}}},
		{&snap.TotalAssets, Call{Contract: r.contracts.Vault, Method: MethodTotalAssets}},
		{&snap.TotalSupply, Call{Contract: r.contracts.Vault, Method: MethodTotalSupply}},
	}

	errs := make([]error, len(calls)+1)
	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			v, err := r.read(ctx, c.call)
			*c.dst = v
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	if snap.Shares != nil {
		v, err := r.read(ctx, Call{Contract: r.contracts.Vault, Method: MethodConvertToAssets, Args: []interface{}{snap.Shares}})
		snap.ConvertedAssets = v
		errs[len(calls)] = err
	}

	snap.ReadAt = time.Now()
	return snap, errors.Join(errs...)
}

func (r *Reader) read(ctx context.Context, call Call) (*big.Int, error) {
	v, err := r.chain.Read(ctx, call)
	if errors.Is(err, ErrPending) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", call.Contract.Hex(), call.Method, err)
	}
	return v, nil
}
