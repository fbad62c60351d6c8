package memory_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/memory"
	"github.com/DevWeb3Jogja/batch-5-fe/memory/embedder/mock"
	"github.com/DevWeb3Jogja/batch-5-fe/memory/store/chromem"
	"github.com/DevWeb3Jogja/batch-5-fe/orchestrator"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
	"github.com/DevWeb3Jogja/batch-5-fe/vault/vaulttest"
)

func newManager(t *testing.T, cfg *memory.Config) *memory.SimpleManager {
	t.Helper()
	store, err := chromem.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return memory.NewSimpleManager(store, mock.New(), cfg)
}

func enabled() *memory.Config {
	return &memory.Config{Enabled: true, MinConversationLength: 20}
}

func TestRecordAndRetrieveTraces(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	traces := []*core.Trace{
		{SessionID: "s1", Thought: "Check the position first", Action: "get_vault_position", Observation: "80 shares", Success: true},
		{SessionID: "s1", Thought: "User wants to deposit 100", Action: "deposit_to_vault", Observation: "deposit settled", Success: true},
	}
	require.NoError(t, m.RecordTraces(ctx, "user1", traces))

	formatted, err := m.Retrieve(ctx, "user1", "deposit 100 to the vault")
	require.NoError(t, err)
	assert.Contains(t, formatted, "RELEVANT PAST ACTIONS")
	assert.Contains(t, formatted, "deposit_to_vault")
	assert.Contains(t, formatted, "get_vault_position")
}

func TestRetrieveIsNamespacedByUser(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	require.NoError(t, m.RecordTraces(ctx, "user1", []*core.Trace{{
		SessionID: "s1", Action: "redeem_vault_shares", Observation: "redeemed", Success: true,
		Metadata: map[string]string{"confirmed": "true"},
	}}))

	other, err := m.Retrieve(ctx, "user2", "redeem shares")
	require.NoError(t, err)
	assert.Empty(t, other)

	own, err := m.Retrieve(ctx, "user1", "redeem shares")
	require.NoError(t, err)
	assert.Contains(t, own, "redeem_vault_shares")
}

func TestTrivialTraceNotStored(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	require.NoError(t, m.RecordTraces(ctx, "user1", []*core.Trace{{
		SessionID: "s1", Thought: "check", Action: "get_vault_position", Observation: "80 shares", Success: true,
	}}))

	formatted, err := m.Retrieve(ctx, "user1", "position")
	require.NoError(t, err)
	assert.Empty(t, formatted)
}

func TestFailureStoredWithPrevention(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	require.NoError(t, m.RecordTraces(ctx, "user1", []*core.Trace{{
		SessionID:   "s1",
		Action:      "withdraw_from_vault",
		Observation: "Failed: withdraw failed: transaction reverted",
		Success:     false,
		Metadata:    map[string]string{"prevention": "Withdraw a smaller amount or redeem shares instead"},
	}}))

	formatted, err := m.Retrieve(ctx, "user1", "withdraw")
	require.NoError(t, err)
	assert.Contains(t, formatted, "[Failed] withdraw_from_vault")
	assert.Contains(t, formatted, "Prevention: Withdraw a smaller amount")
}

func TestDisabledManagerIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &memory.Config{Enabled: false})

	require.NoError(t, m.RecordTraces(ctx, "user1", []*core.Trace{{Action: "x", Success: false}}))
	require.NoError(t, m.RecordConversation(ctx, "user1", "a long enough message to keep", "ok"))

	formatted, err := m.Retrieve(ctx, "user1", "anything")
	require.NoError(t, err)
	assert.Empty(t, formatted)
}

func TestRecordConversation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	require.NoError(t, m.RecordConversation(ctx, "user1", "hi", "Hello!"))
	formatted, err := m.Retrieve(ctx, "user1", "hi")
	require.NoError(t, err)
	assert.Empty(t, formatted)

	require.NoError(t, m.RecordConversation(ctx, "user1",
		"I want to keep at least 50 tokens in my wallet", "Noted, I will leave 50 tokens untouched."))
	formatted, err = m.Retrieve(ctx, "user1", "how much should stay in my wallet")
	require.NoError(t, err)
	assert.Contains(t, formatted, "[Conversation]")
	assert.Contains(t, formatted, "50 tokens")
}

func TestRecordOperation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, enabled())

	inFlight := orchestrator.Operation{ID: "op0", Kind: vault.KindDeposit, Amount: big.NewInt(1), Phase: orchestrator.PhaseAwaitingAction}
	require.NoError(t, m.RecordOperation(ctx, "user1", inFlight))
	formatted, err := m.Retrieve(ctx, "user1", "deposit")
	require.NoError(t, err)
	assert.Empty(t, formatted)

	failed := orchestrator.Operation{
		ID:     "op1",
		Kind:   vault.KindWithdraw,
		Amount: big.NewInt(25_000_000),
		Phase:  orchestrator.PhaseFailed,
		Error:  "transaction reverted: execution reverted in block 9",
	}
	require.NoError(t, m.RecordOperation(ctx, "user1", failed))

	formatted, err = m.Retrieve(ctx, "user1", "why did my withdraw fail")
	require.NoError(t, err)
	assert.Contains(t, formatted, "[Operation failed] withdraw 25.000000")
	assert.Contains(t, formatted, "execution reverted in block 9")
}

func TestStoreGetAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New()
	require.NoError(t, err)

	tx := common.HexToHash("0xabc")
	mem := memory.NewOperationMemory("user1", orchestrator.Operation{
		ID: "op1", Kind: vault.KindDeposit, Amount: big.NewInt(5_000_000),
		Phase: orchestrator.PhaseSettled, ActionTx: &tx,
	})
	emb, err := mock.New().Embed(ctx, mem.FormatForEmbedding())
	require.NoError(t, err)
	mem.SetEmbedding(emb)
	require.NoError(t, store.Store(ctx, mem))

	got, err := store.Get(ctx, "user1", mem.ID())
	require.NoError(t, err)
	op, ok := got.(*memory.OperationMemory)
	require.True(t, ok)
	assert.Equal(t, "deposit", op.Kind)
	assert.Equal(t, "5.000000", op.Amount)
	assert.Equal(t, tx.Hex(), op.ActionTx)
	assert.Contains(t, op.Format(memory.FormatContext{MaxLength: 200}), "[Operation settled] deposit 5.000000")

	require.NoError(t, store.Delete(ctx, "user1", mem.ID()))
	_, err = store.Get(ctx, "user1", mem.ID())
	assert.Error(t, err)
}

func TestStoreRejectsMissingEmbedding(t *testing.T) {
	store, err := chromem.New()
	require.NoError(t, err)
	mem := memory.NewConversationMemory("user1", "a", "b")
	assert.Error(t, store.Store(context.Background(), mem))
}

type opSink struct {
	mu  sync.Mutex
	ops []orchestrator.Operation
}

func (s *opSink) Retrieve(context.Context, string, string) (string, error) { return "", nil }
func (s *opSink) RecordTraces(context.Context, string, []*core.Trace) error {
	return nil
}
func (s *opSink) RecordConversation(context.Context, string, string, string) error {
	return nil
}
func (s *opSink) RecordOperation(_ context.Context, _ string, op orchestrator.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *opSink) recorded() []orchestrator.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orchestrator.Operation(nil), s.ops...)
}

func TestOperationRecorderRecordsDoneOperationsOnce(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultAddr := common.HexToAddress("0x2000000000000000000000000000000000000002")
	account := common.HexToAddress("0x3000000000000000000000000000000000000003")

	chain := vaulttest.New()
	chain.SetAutoConfirm(true)
	chain.SetValue(token, vault.MethodBalanceOf, big.NewInt(100_000_000))
	chain.SetValue(vaultAddr, vault.MethodBalanceOf, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodTotalAssets, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodTotalSupply, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodConvertToAssets, big.NewInt(0))

	session, err := orchestrator.NewSession(orchestrator.Config{
		Chain:     chain,
		Contracts: vault.Contracts{Token: token, Vault: vaultAddr},
	})
	require.NoError(t, err)
	session.Connect(account)

	sink := &opSink{}
	rec := memory.NewOperationRecorder(sink, session, "user1")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = session.Run(ctx) }()
	go func() { defer wg.Done(); _ = rec.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// Let the recorder subscribe before submitting.
	time.Sleep(50 * time.Millisecond)

	session.SetInput(vault.KindWithdraw, big.NewInt(1_000_000))
	id, err := session.Submit(ctx, vault.KindWithdraw)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(sink.recorded()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	ops := sink.recorded()
	require.Len(t, ops, 1)
	assert.Equal(t, id, ops[0].ID)
	assert.Equal(t, orchestrator.PhaseSettled, ops[0].Phase)
}

// blockingSink holds the first RecordOperation until release is closed.
type blockingSink struct {
	opSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) RecordOperation(ctx context.Context, userID string, op orchestrator.Operation) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.opSink.RecordOperation(ctx, userID, op)
}

func TestOperationRecorderCatchesUpAfterFallingBehind(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000000001")
	vaultAddr := common.HexToAddress("0x2000000000000000000000000000000000000002")
	account := common.HexToAddress("0x3000000000000000000000000000000000000003")

	chain := vaulttest.New()
	chain.SetAutoConfirm(true)
	chain.SetValue(token, vault.MethodBalanceOf, big.NewInt(100_000_000))
	chain.SetValue(vaultAddr, vault.MethodBalanceOf, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodTotalAssets, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodTotalSupply, big.NewInt(0))
	chain.SetValue(vaultAddr, vault.MethodConvertToAssets, big.NewInt(0))

	session, err := orchestrator.NewSession(orchestrator.Config{
		Chain:     chain,
		Contracts: vault.Contracts{Token: token, Vault: vaultAddr},
	})
	require.NoError(t, err)
	session.Connect(account)

	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	rec := memory.NewOperationRecorder(sink, session, "user1", memory.WithWatchBuffer(1))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = session.Run(ctx) }()
	go func() { defer wg.Done(); _ = rec.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	time.Sleep(50 * time.Millisecond)

	session.SetInput(vault.KindWithdraw, big.NewInt(1_000_000))
	first, err := session.Submit(ctx, vault.KindWithdraw)
	require.NoError(t, err)

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder never recorded the first operation")
	}

	// The recorder is stuck, so most of these transitions are dropped.
	session.SetInput(vault.KindRedeem, big.NewInt(2_000_000))
	second, err := session.Submit(ctx, vault.KindRedeem)
	require.NoError(t, err)
	awaitCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()
	_, err = session.Await(awaitCtx, vault.KindRedeem, second)
	require.NoError(t, err)

	close(sink.release)

	require.Eventually(t, func() bool { return len(sink.recorded()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	ids := []string{}
	for _, op := range sink.recorded() {
		ids = append(ids, op.ID)
	}
	assert.ElementsMatch(t, []string{first, second}, ids)
}
