// Package vaulttest provides an in-memory vault.Chain for tests.
package vaulttest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// ReadFunc answers a view call. Returning vault.ErrPending simulates a read
// that has not resolved.
type ReadFunc func(args []interface{}) (*big.Int, error)

// Write is a recorded state-changing call.
type Write struct {
	Hash common.Hash
	Call vault.Call
}

type readKey struct {
	contract common.Address
	method   string
}

// Chain is a programmable vault.Chain. Reads are answered from registered
// functions; writes are recorded and stay unincluded until Confirm or Revert
// is called, unless AutoConfirm is set.
type Chain struct {
	mu       sync.Mutex
	reads    map[readKey]ReadFunc
	writes   []Write
	inflight map[common.Hash]chan struct{}
	included map[common.Hash]vault.Receipt
	nonce    int64

	autoConfirm bool
	writeErr    func(vault.Call) error
	onInclude   func(Write)
}

// New creates an empty chain. Every read is pending until registered.
func New() *Chain {
	return &Chain{
		reads:    make(map[readKey]ReadFunc),
		inflight: make(map[common.Hash]chan struct{}),
		included: make(map[common.Hash]vault.Receipt),
	}
}

// SetAutoConfirm makes every write succeed and include immediately.
func (c *Chain) SetAutoConfirm(on bool) {
	c.mu.Lock()
	c.autoConfirm = on
	c.mu.Unlock()
}

// SetWriteError makes Write fail for calls where fn returns an error.
func (c *Chain) SetWriteError(fn func(vault.Call) error) {
	c.mu.Lock()
	c.writeErr = fn
	c.mu.Unlock()
}

// OnInclude registers a hook run when a write is included successfully.
// Tests use it to move balances.
func (c *Chain) OnInclude(fn func(Write)) {
	c.mu.Lock()
	c.onInclude = fn
	c.mu.Unlock()
}

// SetValue answers contract.method with a constant.
func (c *Chain) SetValue(contract common.Address, method string, v *big.Int) {
	val := new(big.Int).Set(v)
	c.SetReadFunc(contract, method, func([]interface{}) (*big.Int, error) {
		return new(big.Int).Set(val), nil
	})
}

// SetPending makes contract.method report no value.
func (c *Chain) SetPending(contract common.Address, method string) {
	c.SetReadFunc(contract, method, func([]interface{}) (*big.Int, error) {
		return nil, vault.ErrPending
	})
}

// SetReadFunc answers contract.method with fn.
func (c *Chain) SetReadFunc(contract common.Address, method string, fn ReadFunc) {
	c.mu.Lock()
	c.reads[readKey{contract, method}] = fn
	c.mu.Unlock()
}

// Read implements vault.Chain.
func (c *Chain) Read(ctx context.Context, call vault.Call) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	fn, ok := c.reads[readKey{call.Contract, call.Method}]
	c.mu.Unlock()
	if !ok {
		return nil, vault.ErrPending
	}
	return fn(call.Args)
}

// Write implements vault.Chain.
func (c *Chain) Write(ctx context.Context, call vault.Call) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	if c.writeErr != nil {
		if err := c.writeErr(call); err != nil {
			c.mu.Unlock()
			return common.Hash{}, err
		}
	}
	c.nonce++
	w := Write{Hash: common.BigToHash(big.NewInt(c.nonce)), Call: call}
	c.writes = append(c.writes, w)
	c.inflight[w.Hash] = make(chan struct{})
	auto := c.autoConfirm
	c.mu.Unlock()

	if auto {
		c.Confirm(w.Hash)
	}
	return w.Hash, nil
}

// AwaitInclusion implements vault.Chain.
func (c *Chain) AwaitInclusion(ctx context.Context, tx common.Hash) (vault.Receipt, error) {
	c.mu.Lock()
	if r, ok := c.included[tx]; ok {
		c.mu.Unlock()
		return r, nil
	}
	ch, ok := c.inflight[tx]
	c.mu.Unlock()
	if !ok {
		return vault.Receipt{}, fmt.Errorf("unknown transaction %s", tx.Hex())
	}

	select {
	case <-ch:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.included[tx], nil
	case <-ctx.Done():
		return vault.Receipt{}, ctx.Err()
	}
}

// Confirm includes tx successfully.
func (c *Chain) Confirm(tx common.Hash) {
	c.include(tx, vault.Receipt{TxHash: tx})
}

// Revert includes tx with a failed status.
func (c *Chain) Revert(tx common.Hash, message string) {
	c.include(tx, vault.Receipt{TxHash: tx, Reverted: true, Message: message})
}

func (c *Chain) include(tx common.Hash, r vault.Receipt) {
	c.mu.Lock()
	ch, ok := c.inflight[tx]
	hook := c.onInclude
	var w Write
	for _, cand := range c.writes {
		if cand.Hash == tx {
			w = cand
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if !r.Reverted && hook != nil {
		hook(w)
	}

	c.mu.Lock()
	delete(c.inflight, tx)
	c.included[tx] = r
	c.mu.Unlock()
	close(ch)
}

// Writes returns every write issued so far, in order.
func (c *Chain) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Write, len(c.writes))
	copy(out, c.writes)
	return out
}

// LastWrite returns the most recent write.
func (c *Chain) LastWrite() (Write, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return Write{}, false
	}
	return c.writes[len(c.writes)-1], true
}
