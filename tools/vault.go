package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/metrics"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Names of the vault tools.
const (
	ToolGetPosition     = "get_vault_position"
	ToolPreview         = "preview_vault_operation"
	ToolOperationStatus = "get_operation_status"
	ToolDeposit         = "deposit_to_vault"
	ToolMint            = "mint_vault_shares"
	ToolRedeem          = "redeem_vault_shares"
	ToolWithdraw        = "withdraw_from_vault"
	ToolFaucet          = "faucet_mint"
)

const defaultAwaitTimeout = 3 * time.Minute

// VaultOption configures the vault tool set.
type VaultOption func(*vaultTools)

// WithAwaitTimeout bounds how long a write tool waits for its operation to
// settle before reporting it as still in progress.
func WithAwaitTimeout(d time.Duration) VaultOption {
	return func(v *vaultTools) {
		if d > 0 {
			v.awaitTimeout = d
		}
	}
}

// WithToolMetrics overrides the metrics sink.
func WithToolMetrics(m *metrics.VaultMetrics) VaultOption {
	return func(v *vaultTools) {
		v.metrics = m
	}
}

type vaultTools struct {
	session      *orchestrator.Session
	faucet       *orchestrator.Faucet
	metrics      *metrics.VaultMetrics
	awaitTimeout time.Duration
}

// VaultTools returns the read and write tools over session. faucet may be
// nil, in which case faucet_mint is omitted.
func VaultTools(session *orchestrator.Session, faucet *orchestrator.Faucet, opts ...VaultOption) []core.Tool {
	v := &vaultTools{
		session:      session,
		faucet:       faucet,
		metrics:      metrics.Vault(),
		awaitTimeout: defaultAwaitTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}

	out := []core.Tool{
		v.positionTool(),
		v.previewTool(),
		v.statusTool(),
		v.writeTool(vault.KindDeposit, ToolDeposit,
			"Deposit test tokens from the wallet into the vault and receive shares. "+
				"Approves the vault for the amount first. Requires confirmation.",
			"Deposit {{.amount}} tokens into the vault", AmountProperty("tokens")),
		v.writeTool(vault.KindMint, ToolMint,
			"Mint an exact number of vault shares, paying the token amount the vault quotes. "+
				"Approves the quoted cost first. Requires confirmation.",
			"Mint {{.amount}} vault shares", AmountOfProperty("shares", "wallet token balance")),
		v.writeTool(vault.KindRedeem, ToolRedeem,
			"Redeem vault shares for tokens. No approval needed. Requires confirmation.",
			"Redeem {{.amount}} vault shares", AmountProperty("shares")),
		v.writeTool(vault.KindWithdraw, ToolWithdraw,
			"Withdraw an exact token amount from the vault, burning the shares it costs. "+
				"Percentages and 'max' are taken of the share balance, not the deposited value; "+
				"use redeem_vault_shares with 'max' to exit the whole position. "+
				"No approval needed. Requires confirmation.",
			"Withdraw {{.amount}} tokens from the vault", AmountOfProperty("tokens", "share balance")),
	}
	if faucet != nil {
		out = append(out, v.faucetTool())
	}
	return out
}

// observed counts every call of fn under tool.
func (v *vaultTools) observed(tool string, fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
		result, err := fn(ctx, params)
		v.metrics.ObserveToolCall(tool, err == nil && result != nil && result.Success)
		return result, err
	}
}

func (v *vaultTools) positionTool() core.Tool {
	return New(ToolGetPosition).
		Description("Get the connected account's wallet balance, vault shares, deposited value, "+
			"yield earned since the first deposit, the vault's share premium (reported as APY), "+
			"and the account's share of the vault. Reads fresh values from chain.").
		Schema(BuildSchemaWithThought(map[string]interface{}{}, false)).
		Handler(v.observed(ToolGetPosition, func(ctx context.Context, _ *core.ToolParams) (*core.ToolResult, error) {
			return v.position(ctx)
		})).
		Build()
}

func (v *vaultTools) position(ctx context.Context) (*core.ToolResult, error) {
	snap, err := v.session.Refresh(ctx)
	if errors.Is(err, orchestrator.ErrNotConnected) {
		return Failure("no wallet connected"), nil
	}
	m := v.session.Metrics()
	result := map[string]interface{}{
		"account": v.session.Account().Hex(),
		"metrics": m,
		"display": displayView(m),
		"raw": map[string]string{
			"wallet_balance":   formatOptional(snap.WalletBalance),
			"shares":           formatOptional(snap.Shares),
			"converted_assets": formatOptional(snap.ConvertedAssets),
			"total_assets":     formatOptional(snap.TotalAssets),
			"total_supply":     formatOptional(snap.TotalSupply),
		},
	}
	if err != nil {
		result["warning"] = "some values are still loading: " + vault.FirstLine(err)
	}
	return Success(result), nil
}

func (v *vaultTools) previewTool() core.Tool {
	return New(ToolPreview).
		Description("Quote a vault operation before submitting it: shares received for a deposit, "+
			"tokens needed for a mint, tokens received for a redeem, shares burned for a withdraw. "+
			"Also returns the exchange rate of output per input.").
		Schema(BuildSchemaWithThought(map[string]interface{}{
			"kind":   KindProperty("Operation to quote"),
			"amount": StringProperty("Amount of tokens for deposit/withdraw or shares for mint/redeem as a decimal " +
				"string (e.g. '12.5'), or a percentage (e.g. '25%', 'max') of the wallet balance for " +
				"deposit/mint and of the share balance for redeem/withdraw"),
		}, false, "kind", "amount")).
		Handler(v.observed(ToolPreview, func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			return v.preview(ctx, params.Input)
		})).
		Build()
}

func (v *vaultTools) preview(ctx context.Context, raw json.RawMessage) (*core.ToolResult, error) {
	var in core.PreviewInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Failure("invalid input: %v", err), nil
	}
	kind, err := vault.ParseKind(in.Kind)
	if err != nil {
		return Failure("%v", err), nil
	}
	if _, err := v.resolveAmount(ctx, kind, in.Amount); err != nil {
		return Failure("%v", err), nil
	}

	q, err := v.session.Preview(ctx, kind)
	if err != nil {
		return Failure("preview %s: %s", kind, vault.FirstLine(err)), nil
	}
	return Success(quoteView(q)), nil
}

func (v *vaultTools) statusTool() core.Tool {
	return New(ToolOperationStatus).
		Description("Get the phase of the current or most recent vault operation of a kind, "+
			"with its transaction hashes and any failure message.").
		Schema(BuildSchemaWithThought(map[string]interface{}{
			"kind": KindProperty("Operation kind"),
		}, false, "kind")).
		Handler(v.observed(ToolOperationStatus, func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in core.KindInput
			if err := json.Unmarshal(params.Input, &in); err != nil {
				return Failure("invalid input: %v", err), nil
			}
			kind, err := vault.ParseKind(in.Kind)
			if err != nil {
				return Failure("%v", err), nil
			}
			st, err := v.session.Status(kind)
			if err != nil {
				return Failure("%v", err), nil
			}
			return Success(stateView(st)), nil
		})).
		Build()
}

func (v *vaultTools) writeTool(kind vault.Kind, name, desc, summary string, amount map[string]interface{}) core.Tool {
	return New(name).
		Description(desc).
		Schema(BuildSchemaWithThought(map[string]interface{}{
			"amount": amount,
		}, true, "amount")).
		RequiresConfirmation().
		SummaryTemplate(summary).
		Handler(v.observed(name, func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			return v.submit(ctx, kind, params.Input)
		})).
		Build()
}

func (v *vaultTools) submit(ctx context.Context, kind vault.Kind, raw json.RawMessage) (*core.ToolResult, error) {
	var in core.AmountInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Failure("invalid input: %v", err), nil
	}
	if v.session.Account() == (common.Address{}) {
		return Failure("no wallet connected"), nil
	}
	amount, err := v.resolveAmount(ctx, kind, in.Amount)
	if err != nil {
		return Failure("%v", err), nil
	}

	id, err := v.session.Submit(ctx, kind)
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		st, _ := v.session.Status(kind)
		return Failure("a %s is already in progress (phase %s); check get_operation_status", kind, st.Phase), nil
	case err != nil:
		return Failure("submit %s: %s", kind, vault.FirstLine(err)), nil
	case id == "":
		return Failure("%s of %s was not submitted: the amount is zero or the price quote is still loading; retry shortly",
			kind, vault.FormatAmount(amount)), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, v.awaitTimeout)
	defer cancel()
	op, err := v.session.Await(waitCtx, kind, id)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return Failure("await %s: %v", kind, err), nil
	}

	view := operationView(op)
	switch {
	case op.Phase == orchestrator.PhaseFailed:
		return &core.ToolResult{Success: false, Data: view, Error: fmt.Sprintf("%s failed: %s", kind, op.Error)}, nil
	case !op.Phase.Terminal():
		view["message"] = fmt.Sprintf("%s submitted and still in progress (phase %s)", kind, op.Phase)
		return Success(view), nil
	}
	view["message"] = fmt.Sprintf("%s of %s settled", kind, vault.FormatAmount(op.Amount))
	view["position"] = v.session.Metrics()
	return Success(view), nil
}

func (v *vaultTools) faucetTool() core.Tool {
	return New(ToolFaucet).
		Description("Mint free test tokens to the connected wallet. Test networks only.").
		Schema(BuildSchemaWithThought(map[string]interface{}{
			"amount": StringProperty("Token amount to mint as a decimal string (e.g. '1000')"),
		}, true, "amount")).
		RequiresConfirmation().
		SummaryTemplate("Mint {{.amount}} test tokens to your wallet").
		Handler(v.observed(ToolFaucet, func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			return v.mint(ctx, params.Input)
		})).
		Build()
}

func (v *vaultTools) mint(ctx context.Context, raw json.RawMessage) (*core.ToolResult, error) {
	var in core.AmountInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Failure("invalid input: %v", err), nil
	}
	if v.session.Account() == (common.Address{}) {
		return Failure("no wallet connected"), nil
	}
	amount, err := vault.ParseAmount(in.Amount)
	if err != nil {
		return Failure("%v", err), nil
	}
	if amount.Sign() <= 0 {
		return Failure("amount must be positive"), nil
	}

	tx, err := v.faucet.Mint(ctx, amount)
	if err != nil {
		return Failure("%s", vault.FirstLine(err)), nil
	}
	return Success(map[string]interface{}{
		"tx_hash":        tx.Hex(),
		"minted":         vault.FormatAmount(amount),
		"wallet_balance": formatOptional(v.session.Position().WalletBalance),
	}), nil
}

// resolveAmount turns a tool amount into the session input for kind.
func (v *vaultTools) resolveAmount(ctx context.Context, kind vault.Kind, raw string) (*big.Int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return nil, fmt.Errorf("amount required")
	}

	var percent int64 = -1
	switch {
	case s == "max":
		percent = 100
	case strings.HasSuffix(s, "%"):
		p, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, "%")), 10, 64)
		if err != nil || p <= 0 || p > 100 {
			return nil, fmt.Errorf("percentage must be a whole number between 1 and 100")
		}
		percent = p
	}

	if percent > 0 {
		amount, err := v.session.SetInputFraction(kind, percent)
		if err != nil {
			if _, rerr := v.session.Refresh(ctx); rerr != nil && errors.Is(rerr, orchestrator.ErrNotConnected) {
				return nil, fmt.Errorf("no wallet connected")
			}
			amount, err = v.session.SetInputFraction(kind, percent)
		}
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			return nil, fmt.Errorf("nothing available to %s", kind)
		}
		return amount, nil
	}

	amount, err := vault.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	v.session.SetInput(kind, amount)
	return amount, nil
}

func formatOptional(v *big.Int) string {
	if v == nil {
		return "loading"
	}
	return vault.FormatAmount(v)
}

// displayView is the position as the user should read it.
func displayView(m vault.Metrics) map[string]string {
	out := map[string]string{
		"wallet_balance":  vault.FormatDisplay(m.WalletBalance),
		"shares":          vault.FormatDisplay(m.Shares),
		"deposited_value": vault.FormatDisplay(m.DepositedValue),
	}
	if m.YieldEarned != nil {
		out["yield_earned"] = vault.FormatDisplay(*m.YieldEarned)
	}
	if m.APY != nil {
		out["apy"] = vault.FormatDisplay(*m.APY) + "%"
	}
	return out
}

func quoteView(q vault.Quote) map[string]interface{} {
	out := map[string]interface{}{
		"kind":        q.Kind,
		"input":       formatOptional(q.Input),
		"input_unit":  q.Kind.InputUnit(),
		"output_unit": q.Kind.OutputUnit(),
	}
	if !q.Resolved() {
		out["output"] = "loading"
		return out
	}
	out["output"] = vault.FormatAmount(q.Output)
	if rate, ok := q.ExchangeRate(); ok {
		out["exchange_rate"] = rate
	}
	return out
}

func stateView(st orchestrator.State) map[string]interface{} {
	out := map[string]interface{}{
		"kind":      st.Kind,
		"phase":     st.Phase,
		"in_flight": st.InFlight(),
	}
	if st.Operation != nil {
		out["operation"] = operationView(*st.Operation)
	}
	return out
}

func operationView(op orchestrator.Operation) map[string]interface{} {
	out := map[string]interface{}{
		"operation_id": op.ID,
		"kind":         op.Kind,
		"phase":        op.Phase,
		"history":      op.History,
	}
	if op.Amount != nil {
		out["amount"] = vault.FormatAmount(op.Amount)
	}
	if op.Approval != nil {
		out["approval"] = vault.FormatAmount(op.Approval)
	}
	if op.ApprovalTx != nil {
		out["approval_tx"] = op.ApprovalTx.Hex()
	}
	if op.ActionTx != nil {
		out["action_tx"] = op.ActionTx.Hex()
	}
	if op.Error != "" {
		out["error"] = op.Error
	}
	return out
}
