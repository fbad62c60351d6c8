package vault_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
	"github.com/DevWeb3Jogja/batch-5-fe/vault/vaulttest"
)

var (
	token   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vaultAt = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	account = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	contracts = vault.Contracts{Token: token, Vault: vaultAt}
)

func scaled(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := vault.ParseAmount(s)
	require.NoError(t, err)
	return v
}

func TestPreviewExchangeRate(t *testing.T) {
	chain := vaulttest.New()
	chain.SetReadFunc(vaultAt, vault.MethodPreviewMint, func(args []interface{}) (*big.Int, error) {
		shares := args[0].(*big.Int)
		// 1.04 assets per share
		out := new(big.Int).Mul(shares, big.NewInt(104))
		return out.Quo(out, big.NewInt(100)), nil
	})

	p := vault.NewPreviewer(chain, contracts)
	q, err := p.Preview(context.Background(), vault.KindMint, scaled(t, "50"))
	require.NoError(t, err)
	require.True(t, q.Resolved())
	assert.Equal(t, "52000000", q.Output.String())

	rate, ok := q.ExchangeRate()
	require.True(t, ok)
	assert.InDelta(t, 1.04, rate, 1e-12)
}

func TestPreviewPendingAndZero(t *testing.T) {
	chain := vaulttest.New()
	p := vault.NewPreviewer(chain, contracts)

	q, err := p.Preview(context.Background(), vault.KindDeposit, scaled(t, "10"))
	require.NoError(t, err)
	assert.True(t, q.Loading)
	assert.False(t, q.Resolved())
	_, ok := q.ExchangeRate()
	assert.False(t, ok)

	q, err = p.Preview(context.Background(), vault.KindDeposit, new(big.Int))
	require.NoError(t, err)
	assert.False(t, q.Loading)
	_, ok = q.ExchangeRate()
	assert.False(t, ok)
}

func TestPreviewReadError(t *testing.T) {
	chain := vaulttest.New()
	boom := errors.New("execution reverted")
	chain.SetReadFunc(vaultAt, vault.MethodPreviewRedeem, func([]interface{}) (*big.Int, error) {
		return nil, boom
	})

	_, err := vault.NewPreviewer(chain, contracts).Preview(context.Background(), vault.KindRedeem, scaled(t, "1"))
	assert.ErrorIs(t, err, boom)
}

func TestReaderSnapshot(t *testing.T) {
	chain := vaulttest.New()
	chain.SetValue(token, vault.MethodBalanceOf, scaled(t, "500"))
	chain.SetValue(vaultAt, vault.MethodBalanceOf, scaled(t, "100"))
	chain.SetValue(vaultAt, vault.MethodTotalAssets, scaled(t, "1050000"))
	chain.SetValue(vaultAt, vault.MethodTotalSupply, scaled(t, "1000000"))
	chain.SetReadFunc(vaultAt, vault.MethodConvertToAssets, func(args []interface{}) (*big.Int, error) {
		shares := args[0].(*big.Int)
		out := new(big.Int).Mul(shares, big.NewInt(105))
		return out.Quo(out, big.NewInt(100)), nil
	})

	snap, err := vault.NewReader(chain, contracts).Snapshot(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, scaled(t, "500").String(), snap.WalletBalance.String())
	assert.Equal(t, scaled(t, "100").String(), snap.Shares.String())
	assert.Equal(t, scaled(t, "105").String(), snap.ConvertedAssets.String())
	assert.False(t, snap.ReadAt.IsZero())
}

func TestReaderSnapshotLeavesPendingNil(t *testing.T) {
	chain := vaulttest.New()
	chain.SetValue(token, vault.MethodBalanceOf, scaled(t, "1"))

	snap, err := vault.NewReader(chain, contracts).Snapshot(context.Background(), account)
	require.NoError(t, err)
	assert.NotNil(t, snap.WalletBalance)
	assert.Nil(t, snap.Shares)
	assert.Nil(t, snap.TotalSupply)
	assert.Nil(t, snap.ConvertedAssets)
}

func TestReaderSnapshotPendingSharesSkipsConversion(t *testing.T) {
	chain := vaulttest.New()
	chain.SetValue(token, vault.MethodBalanceOf, scaled(t, "1"))
	chain.SetValue(vaultAt, vault.MethodTotalAssets, scaled(t, "1050"))
	chain.SetValue(vaultAt, vault.MethodTotalSupply, scaled(t, "1000"))
	chain.SetPending(vaultAt, vault.MethodBalanceOf)
	converted := 0
	chain.SetReadFunc(vaultAt, vault.MethodConvertToAssets, func(args []interface{}) (*big.Int, error) {
		converted++
		return new(big.Int).Set(args[0].(*big.Int)), nil
	})

	snap, err := vault.NewReader(chain, contracts).Snapshot(context.Background(), account)
	require.NoError(t, err)
	assert.Nil(t, snap.Shares)
	assert.Nil(t, snap.ConvertedAssets)
	assert.NotNil(t, snap.TotalAssets)
	assert.Zero(t, converted)
}

func TestReaderSnapshotJoinsErrors(t *testing.T) {
	chain := vaulttest.New()
	boom := errors.New("rpc down")
	chain.SetValue(token, vault.MethodBalanceOf, scaled(t, "7"))
	chain.SetReadFunc(vaultAt, vault.MethodTotalSupply, func([]interface{}) (*big.Int, error) {
		return nil, boom
	})

	snap, err := vault.NewReader(chain, contracts).Snapshot(context.Background(), account)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, scaled(t, "7").String(), snap.WalletBalance.String())
}
