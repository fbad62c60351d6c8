package vault

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token and vault methods the orchestrator calls.
const (
	MethodBalanceOf       = "balanceOf"
	MethodApprove         = "approve"
	MethodMint            = "mint"
	MethodTotalAssets     = "totalAssets"
	MethodTotalSupply     = "totalSupply"
	MethodConvertToAssets = "convertToAssets"
	MethodPreviewDeposit  = "previewDeposit"
	MethodPreviewMint     = "previewMint"
	MethodPreviewRedeem   = "previewRedeem"
	MethodPreviewWithdraw = "previewWithdraw"
	MethodDeposit         = "deposit"
	MethodRedeem          = "redeem"
	MethodWithdraw        = "withdraw"
)

var (
	// ErrPending is returned by Chain.Read while a value is not available yet.
	// Callers must treat it as "no value", never as zero.
	ErrPending = errors.New("value not available yet")

	// ErrRejected marks a write the signer refused.
	ErrRejected = errors.New("transaction rejected")

	// ErrReverted marks a transaction included with a failed status.
	ErrReverted = errors.New("transaction reverted")
)

// Contracts holds the two contract addresses the system talks to.
type Contracts struct {
	Token common.Address
	Vault common.Address
}

// Call identifies a contract method invocation.
type Call struct {
	Contract common.Address
	Method   string
	Args     []interface{}
}

// Receipt is the final status of an included transaction.
type Receipt struct {
	TxHash   common.Hash
	Reverted bool
	Message  string
}

// Chain is the contract-call transport. Implementations must be safe for
// concurrent use.
type Chain interface {
	// Read performs a view call returning a single uint256.
	Read(ctx context.Context, call Call) (*big.Int, error)

	// Write submits a state-changing call and returns its handle as soon as
	// the transaction is signed and broadcast.
	Write(ctx context.Context, call Call) (common.Hash, error)

	// AwaitInclusion blocks until the transaction is included or ctx ends.
	AwaitInclusion(ctx context.Context, tx common.Hash) (Receipt, error)
}
