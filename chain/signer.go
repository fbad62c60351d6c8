package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Signer signs and broadcasts a contract call from the account.
type Signer interface {
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, to common.Address, data []byte) (common.Hash, error)

// SendTransaction implements Signer.
func (f SignerFunc) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	return f(ctx, to, data)
}

// ExecutorSigner sends transactions through the managed wallet's
// execute_contract_call tool. Keys never leave the wallet service.
type ExecutorSigner struct {
	executor core.ToolExecutor
	userID   string
	chainID  int64
	gasTier  string
}

// NewExecutorSigner creates a signer for userID's managed wallet on chainID.
func NewExecutorSigner(executor core.ToolExecutor, userID string, chainID int64, gasTier string) *ExecutorSigner {
	if gasTier == "" {
		gasTier = "standard"
	}
	return &ExecutorSigner{executor: executor, userID: userID, chainID: chainID, gasTier: gasTier}
}

// SendTransaction implements Signer. A refusal from the wallet service is
// reported as vault.ErrRejected carrying the service's message.
func (s *ExecutorSigner) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	input, err := json.Marshal(map[string]interface{}{
		"chain_id": s.chainID,
		"to":       to.Hex(),
		"data":     hexutil.Encode(data),
		"value":    "0",
		"gas_tier": s.gasTier,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("marshal contract call: %w", err)
	}

	resp, err := s.executor.ExecuteWrite(ctx, &core.ExecuteRequest{
		UserID: s.userID,
		Tool:   "execute_contract_call",
		Input:  input,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("execute contract call: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "wallet refused the transaction"
		}
		return common.Hash{}, fmt.Errorf("%s: %w", msg, vault.ErrRejected)
	}
	if resp.RequiresConfirmation {
		return common.Hash{}, fmt.Errorf("wallet requires out-of-band confirmation: %w", vault.ErrRejected)
	}
	return parseTxHash(resp.Data)
}

// parseTxHash pulls the transaction hash from an executor response. The
// wallet service has used several field names over time.
func parseTxHash(data json.RawMessage) (common.Hash, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return common.Hash{}, fmt.Errorf("decode executor response: %w", err)
	}
	for _, key := range []string{"tx_hash", "transaction_hash", "hash", "txHash"} {
		if v, ok := body[key].(string); ok && strings.HasPrefix(v, "0x") && len(v) == 66 {
			return common.HexToHash(v), nil
		}
	}
	return common.Hash{}, fmt.Errorf("executor response carries no transaction hash")
}
