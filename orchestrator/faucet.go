package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Faucet mints test tokens to the session account. The test token exposes
// an open mint(to, amount).
type Faucet struct {
	session *Session
	chain   vault.Chain
	log     zerolog.Logger
}

// NewFaucet creates a faucet for session.
func NewFaucet(session *Session, chain vault.Chain) *Faucet {
	return &Faucet{
		session: session,
		chain:   chain,
		log:     logger.GetForComponent("faucet"),
	}
}

// Mint mints amount to the connected account, waits for inclusion and
// refreshes the position. It is a no-op without an account or with a
// non-positive amount.
func (f *Faucet) Mint(ctx context.Context, amount *big.Int) (common.Hash, error) {
	account := f.session.Account()
	if account == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, nil
	}

	tx, err := f.chain.Write(ctx, vault.Call{
		Contract: f.session.Contracts().Token,
		Method:   vault.MethodMint,
		Args:     []interface{}{account, amount},
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("faucet mint: %w", err)
	}
	f.log.Info().Str("tx", tx.Hex()).Str("amount", vault.FormatAmount(amount)).Msg("faucet mint submitted")

	receipt, err := f.chain.AwaitInclusion(ctx, tx)
	if err != nil {
		return tx, fmt.Errorf("faucet mint: %w", err)
	}
	if receipt.Reverted {
		return tx, fmt.Errorf("faucet mint: %w", revertError(receipt))
	}

	if _, err := f.session.Refresh(ctx); err != nil {
		f.log.Warn().Err(err).Msg("refresh after faucet mint failed")
	}
	return tx, nil
}
