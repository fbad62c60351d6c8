// Package chain implements vault.Chain against an Ethereum JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/metrics"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

var (
	// ErrUnknownContract is returned for calls to an address that is
	// neither the token nor the vault.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrUnknownMethod is returned for a method missing from the ABI.
	ErrUnknownMethod = errors.New("unknown method")
)

// Backend is the subset of the Ethereum RPC used by the client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial initialises an RPC backend for endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Config configures a Client.
type Config struct {
	Contracts vault.Contracts

	// From is used as the caller of view calls.
	From common.Address

	// PollInterval is the receipt polling period. Defaults to 2s.
	PollInterval time.Duration

	// ReadsPerSecond throttles view calls. Zero disables throttling.
	ReadsPerSecond float64
}

// Client implements vault.Chain with ABI-encoded calls.
type Client struct {
	backend   Backend
	signer    Signer
	contracts vault.Contracts
	from      common.Address
	poll      time.Duration
	limiter   *rate.Limiter
	metrics   *metrics.VaultMetrics
	log       zerolog.Logger
}

// NewClient creates a client. signer may be nil for read-only use.
func NewClient(backend Backend, signer Signer, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if cfg.Contracts.Token == (common.Address{}) || cfg.Contracts.Vault == (common.Address{}) {
		return nil, fmt.Errorf("token and vault addresses required")
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.ReadsPerSecond > 0 {
		burst := int(cfg.ReadsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), burst)
	}

	return &Client{
		backend:   backend,
		signer:    signer,
		contracts: cfg.Contracts,
		from:      cfg.From,
		poll:      poll,
		limiter:   limiter,
		metrics:   metrics.Vault(),
		log:       logger.GetForComponent("chain"),
	}, nil
}

func (c *Client) abiFor(contract common.Address) (abi.ABI, error) {
	switch contract {
	case c.contracts.Token:
		return TokenABI, nil
	case c.contracts.Vault:
		return VaultABI, nil
	}
	return abi.ABI{}, fmt.Errorf("%w: %s", ErrUnknownContract, contract.Hex())
}

// Pack encodes call as calldata.
func (c *Client) Pack(call vault.Call) ([]byte, error) {
	parsed, err := c.abiFor(call.Contract)
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.Methods[call.Method]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
	data, err := parsed.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", call.Method, err)
	}
	return data, nil
}

// Read implements vault.Chain. An empty return, as from an undeployed
// contract, is reported as vault.ErrPending.
func (c *Client) Read(ctx context.Context, call vault.Call) (*big.Int, error) {
	data, err := c.Pack(call)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	to := call.Contract
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	c.metrics.ObserveChainCall(call.Method, err)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", call.Method, err)
	}
	if len(out) == 0 {
		return nil, vault.ErrPending
	}

	parsed, _ := c.abiFor(call.Contract)
	values, err := parsed.Unpack(call.Method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no return value", call.Method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", call.Method, values[0])
	}
	return v, nil
}

// Write implements vault.Chain.
func (c *Client) Write(ctx context.Context, call vault.Call) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("no signer configured")
	}
	data, err := c.Pack(call)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.signer.SendTransaction(ctx, call.Contract, data)
	c.metrics.ObserveChainCall(call.Method, err)
	if err != nil {
		return common.Hash{}, err
	}
	c.log.Info().Str("method", call.Method).Str("to", call.Contract.Hex()).Str("tx", tx.Hex()).Msg("transaction sent")
	return tx, nil
}

// AwaitInclusion implements vault.Chain by polling for the receipt.
func (c *Client) AwaitInclusion(ctx context.Context, tx common.Hash) (vault.Receipt, error) {
	if (tx == common.Hash{}) {
		return vault.Receipt{}, fmt.Errorf("tx hash required")
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, tx)
		switch {
		case err == nil && receipt != nil:
			return toReceipt(tx, receipt), nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return vault.Receipt{}, ctx.Err()
			}
			return vault.Receipt{}, fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return vault.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func toReceipt(tx common.Hash, r *gethtypes.Receipt) vault.Receipt {
	out := vault.Receipt{TxHash: tx}
	if r.Status != gethtypes.ReceiptStatusSuccessful {
		out.Reverted = true
		block := "unknown"
		if r.BlockNumber != nil {
			block = r.BlockNumber.String()
		}
		out.Message = fmt.Sprintf("execution reverted in block %s", block)
	}
	return out
}
