package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DevWeb3Jogja/batch-5-fe/logger"
	"github.com/DevWeb3Jogja/batch-5-fe/metrics"
	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// ErrNotConnected is returned by operations that need an account.
var ErrNotConnected = errors.New("no account connected")

// Config configures a Session.
type Config struct {
	Chain     vault.Chain
	Contracts vault.Contracts

	// InclusionTimeout fails operations whose transactions are not included
	// in time. Zero waits forever.
	InclusionTimeout time.Duration

	// BasisReset gives a fresh yield basis after the position returns to
	// zero shares.
	BasisReset bool

	// Logger defaults to the "session" component logger.
	Logger *zerolog.Logger

	// Metrics defaults to the process-wide collectors.
	Metrics *metrics.VaultMetrics
}

// Session is the surface for one connected account: per-kind input amounts,
// the four operation controllers, the latest position snapshot and the
// yield tracker.
type Session struct {
	contracts   vault.Contracts
	reader      *vault.Reader
	previewer   *vault.Previewer
	tracker     *vault.Tracker
	controllers map[vault.Kind]*Controller
	log         zerolog.Logger
	metrics     *metrics.VaultMetrics

	mu      sync.RWMutex
	account common.Address
	inputs  map[vault.Kind]*big.Int
	snap    vault.Snapshot

	watchMu  sync.Mutex
	watchers map[int]chan State
	nextID   int
}

// NewSession creates a session with no account connected.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Chain == nil {
		return nil, fmt.Errorf("chain is required")
	}
	if cfg.Contracts.Token == (common.Address{}) || cfg.Contracts.Vault == (common.Address{}) {
		return nil, fmt.Errorf("token and vault addresses are required")
	}

	log := logger.GetForComponent("session")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Vault()
	}

	var trackerOpts []vault.TrackerOption
	if cfg.BasisReset {
		trackerOpts = append(trackerOpts, vault.WithBasisReset())
	}

	s := &Session{
		contracts:   cfg.Contracts,
		reader:      vault.NewReader(cfg.Chain, cfg.Contracts),
		previewer:   vault.NewPreviewer(cfg.Chain, cfg.Contracts),
		tracker:     vault.NewTracker(trackerOpts...),
		controllers: make(map[vault.Kind]*Controller, len(vault.Kinds)),
		log:         log,
		metrics:     m,
		inputs:      make(map[vault.Kind]*big.Int, len(vault.Kinds)),
		watchers:    make(map[int]chan State),
	}
	for _, kind := range vault.Kinds {
		s.controllers[kind] = NewController(kind, cfg.Chain, cfg.Contracts,
			WithLogger(log.With().Str("component", "controller").Logger()),
			WithMetrics(m),
			WithInclusionTimeout(cfg.InclusionTimeout),
			WithSettle(s.settle),
			WithObserver(s.publish),
		)
	}
	return s, nil
}

// Contracts returns the configured contract addresses.
func (s *Session) Contracts() vault.Contracts {
	return s.contracts
}

// Connect sets the account. Switching to a different account clears inputs,
// the snapshot and the yield basis.
func (s *Session) Connect(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == account {
		return
	}
	s.account = account
	s.inputs = make(map[vault.Kind]*big.Int, len(vault.Kinds))
	s.snap = vault.Snapshot{}
	s.tracker.Reset()
	s.log.Info().Str("account", account.Hex()).Msg("account connected")
}

// Disconnect clears the account.
func (s *Session) Disconnect() {
	s.Connect(common.Address{})
}

// Account returns the connected account, zero when disconnected.
func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// SetInput records the amount typed for kind.
func (s *Session) SetInput(kind vault.Kind, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount == nil {
		delete(s.inputs, kind)
		return
	}
	s.inputs[kind] = new(big.Int).Set(amount)
}

// SetInputFraction sets the input for kind to percent of the balance the
// kind spends: the wallet balance for deposit and mint, the share balance
// for redeem and withdraw.
func (s *Session) SetInputFraction(kind vault.Kind, percent int64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.snap.WalletBalance
	if kind == vault.KindRedeem || kind == vault.KindWithdraw {
		base = s.snap.Shares
	}
	if base == nil {
		return nil, fmt.Errorf("%s: balance not loaded yet", kind)
	}
	amount := vault.Fraction(base, percent)
	s.inputs[kind] = amount
	return new(big.Int).Set(amount), nil
}

// Input returns the amount typed for kind, zero when unset.
func (s *Session) Input(kind vault.Kind) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.inputs[kind]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Preview quotes the current input for kind.
func (s *Session) Preview(ctx context.Context, kind vault.Kind) (vault.Quote, error) {
	return s.previewer.Preview(ctx, kind, s.Input(kind))
}

// Submit starts an operation of kind for the current input. It returns an
// empty ID when the submit was a no-op and ErrBusy while an operation of
// the same kind is in flight.
func (s *Session) Submit(ctx context.Context, kind vault.Kind) (string, error) {
	c, err := s.controller(kind)
	if err != nil {
		return "", err
	}
	if c.State().InFlight() {
		return "", ErrBusy
	}
	return c.Submit(ctx, Request{Account: s.Account(), Amount: s.Input(kind)})
}

// Status returns the controller state for kind.
func (s *Session) Status(kind vault.Kind) (State, error) {
	c, err := s.controller(kind)
	if err != nil {
		return State{}, err
	}
	return c.State(), nil
}

// Await blocks until operation id of kind is done.
func (s *Session) Await(ctx context.Context, kind vault.Kind, id string) (Operation, error) {
	c, err := s.controller(kind)
	if err != nil {
		return Operation{}, err
	}
	return c.Await(ctx, id)
}

// Refresh re-reads every dependent value for the account and feeds the
// tracker. Values that fail to read keep nil in the snapshot.
func (s *Session) Refresh(ctx context.Context) (vault.Snapshot, error) {
	account := s.Account()
	if account == (common.Address{}) {
		return vault.Snapshot{}, ErrNotConnected
	}

	snap, err := s.reader.Snapshot(ctx, account)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh incomplete")
	}

	s.mu.Lock()
	if s.account != account {
		// Account switched mid-read; the snapshot belongs to nobody.
		s.mu.Unlock()
		return vault.Snapshot{}, ErrNotConnected
	}
	s.snap = snap
	s.mu.Unlock()

	if s.tracker.Observe(snap) {
		s.log.Info().Str("basis", vault.FormatAmount(snap.ConvertedAssets)).Msg("yield basis captured")
	}
	if m := s.tracker.Metrics(snap); m.APY != nil {
		s.metrics.SetSharePremium(*m.APY)
	}
	return snap, err
}

// Position returns the last snapshot.
func (s *Session) Position() vault.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Metrics derives position figures from the last snapshot.
func (s *Session) Metrics() vault.Metrics {
	return s.tracker.Metrics(s.Position())
}

// Watch subscribes to controller state changes. Slow readers miss updates
// rather than stall the controllers. Call cancel to unsubscribe.
func (s *Session) Watch(buffer int) (<-chan State, func()) {
	ch := make(chan State, buffer)
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) publish(st State) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- st:
		default:
		}
	}
}

// Run runs every controller until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.controllers {
		g.Go(func() error {
			return c.Run(ctx)
		})
	}
	return g.Wait()
}

// settle runs after an action is included: refresh the dependent reads,
// let the tracker capture a basis, and clear the input for the kind.
func (s *Session) settle(ctx context.Context, op Operation) error {
	s.SetInput(op.Kind, new(big.Int))
	if op.Owner != s.Account() {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

func (s *Session) controller(kind vault.Kind) (*Controller, error) {
	c, ok := s.controllers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	return c, nil
}
