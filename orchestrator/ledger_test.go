package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
	"github.com/DevWeb3Jogja/batch-5-fe/vault/vaulttest"
)

var (
	tokenAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	accountAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")

	testContracts = vault.Contracts{Token: tokenAddr, Vault: vaultAddr}
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func amt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := vault.ParseAmount(s)
	require.NoError(t, err)
	return v
}

// ledger is a toy vault behind a vaulttest.Chain: one account, a fixed
// assets-per-share rate of num/den, and balances that move when writes
// are included.
type ledger struct {
	mu       sync.Mutex
	wallet   *big.Int
	shares   *big.Int
	external *big.Int
	num, den int64
}

func newLedger(chain *vaulttest.Chain, wallet *big.Int, num, den int64) *ledger {
	l := &ledger{
		wallet:   new(big.Int).Set(wallet),
		shares:   new(big.Int),
		external: new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)),
		num:      num,
		den:      den,
	}

	read := func(fn func() *big.Int) vaulttest.ReadFunc {
		return func([]interface{}) (*big.Int, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			return new(big.Int).Set(fn()), nil
		}
	}
	convert := func(f func(*big.Int) *big.Int) vaulttest.ReadFunc {
		return func(args []interface{}) (*big.Int, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			return f(args[0].(*big.Int)), nil
		}
	}

	chain.SetReadFunc(tokenAddr, vault.MethodBalanceOf, read(func() *big.Int { return l.wallet }))
	chain.SetReadFunc(vaultAddr, vault.MethodBalanceOf, read(func() *big.Int { return l.shares }))
	chain.SetReadFunc(vaultAddr, vault.MethodTotalSupply, read(l.supply))
	chain.SetReadFunc(vaultAddr, vault.MethodTotalAssets, read(func() *big.Int { return l.toAssets(l.supply()) }))
	chain.SetReadFunc(vaultAddr, vault.MethodConvertToAssets, convert(l.toAssets))
	chain.SetReadFunc(vaultAddr, vault.MethodPreviewDeposit, convert(l.toShares))
	chain.SetReadFunc(vaultAddr, vault.MethodPreviewMint, convert(l.toAssets))
	chain.SetReadFunc(vaultAddr, vault.MethodPreviewRedeem, convert(l.toAssets))
	chain.SetReadFunc(vaultAddr, vault.MethodPreviewWithdraw, convert(l.toShares))

	chain.OnInclude(l.apply)
	return l
}

func (l *ledger) supply() *big.Int {
	return new(big.Int).Add(l.external, l.shares)
}

func (l *ledger) toAssets(shares *big.Int) *big.Int {
	out := new(big.Int).Mul(shares, big.NewInt(l.num))
	return out.Quo(out, big.NewInt(l.den))
}

func (l *ledger) toShares(assets *big.Int) *big.Int {
	out := new(big.Int).Mul(assets, big.NewInt(l.den))
	return out.Quo(out, big.NewInt(l.num))
}

func (l *ledger) apply(w vaulttest.Write) {
	l.mu.Lock()
	defer l.mu.Unlock()

	call := w.Call
	if call.Contract == tokenAddr {
		if call.Method == vault.MethodMint {
			l.wallet.Add(l.wallet, call.Args[1].(*big.Int))
		}
		return
	}
	a := call.Args[0].(*big.Int)
	switch call.Method {
	case vault.MethodDeposit:
		l.wallet.Sub(l.wallet, a)
		l.shares.Add(l.shares, l.toShares(a))
	case vault.MethodMint:
		l.wallet.Sub(l.wallet, l.toAssets(a))
		l.shares.Add(l.shares, a)
	case vault.MethodRedeem:
		l.shares.Sub(l.shares, a)
		l.wallet.Add(l.wallet, l.toAssets(a))
	case vault.MethodWithdraw:
		l.shares.Sub(l.shares, l.toShares(a))
		l.wallet.Add(l.wallet, a)
	}
}

// newTestSession starts a session over a fresh chain with account connected.
func newTestSession(t *testing.T, cfg Config) (*Session, *vaulttest.Chain) {
	t.Helper()
	if cfg.Chain == nil {
		cfg.Chain = vaulttest.New()
	}
	cfg.Contracts = testContracts

	s, err := NewSession(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s.Connect(accountAddr)
	return s, cfg.Chain.(*vaulttest.Chain)
}

func waitWrites(t *testing.T, chain *vaulttest.Chain, n int) []vaulttest.Write {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(chain.Writes()) >= n
	}, waitFor, tick)
	return chain.Writes()
}

func waitPhase(t *testing.T, s *Session, kind vault.Kind, phase Phase) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st, _ = s.Status(kind)
		return st.Phase == phase
	}, waitFor, tick)
	return st
}
