package chain

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

type fakeExecutor struct {
	req  *core.ExecuteRequest
	resp *core.ExecuteResponse
}

func (f *fakeExecutor) Execute(ctx context.Context, req *core.ExecuteRequest) (*core.ExecuteResponse, error) {
	return f.ExecuteWrite(ctx, req)
}

func (f *fakeExecutor) ExecuteWrite(_ context.Context, req *core.ExecuteRequest) (*core.ExecuteResponse, error) {
	f.req = req
	return f.resp, nil
}

func TestExecutorSignerSendsContractCall(t *testing.T) {
	hash := "0xab" + strings.Repeat("0", 62)
	exec := &fakeExecutor{resp: &core.ExecuteResponse{
		Success: true,
		Data:    json.RawMessage(`{"transaction_hash":"` + hash + `"}`),
	}}
	s := NewExecutorSigner(exec, "user-1", 84532, "")

	tx, err := s.SendTransaction(context.Background(), vaultAddr, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(hash), tx)

	require.NotNil(t, exec.req)
	assert.Equal(t, "execute_contract_call", exec.req.Tool)
	assert.Equal(t, "user-1", exec.req.UserID)

	var input map[string]interface{}
	require.NoError(t, json.Unmarshal(exec.req.Input, &input))
	assert.Equal(t, float64(84532), input["chain_id"])
	assert.Equal(t, vaultAddr.Hex(), input["to"])
	assert.Equal(t, "0xdead", input["data"])
	assert.Equal(t, "0", input["value"])
	assert.Equal(t, "standard", input["gas_tier"])
}

func TestExecutorSignerRejection(t *testing.T) {
	exec := &fakeExecutor{resp: &core.ExecuteResponse{Success: false, Error: "user rejected the request"}}
	s := NewExecutorSigner(exec, "user-1", 1, "fast")

	_, err := s.SendTransaction(context.Background(), vaultAddr, nil)
	assert.ErrorIs(t, err, vault.ErrRejected)
	assert.Contains(t, err.Error(), "user rejected the request")
}

func TestExecutorSignerMissingHash(t *testing.T) {
	exec := &fakeExecutor{resp: &core.ExecuteResponse{Success: true, Data: json.RawMessage(`{"status":"queued"}`)}}
	s := NewExecutorSigner(exec, "user-1", 1, "")

	_, err := s.SendTransaction(context.Background(), vaultAddr, nil)
	assert.Error(t, err)
}
