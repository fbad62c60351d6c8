package vault

import (
	"math/big"
	"sync"
	"time"
)

// Snapshot is one round of dependent reads for an account. A nil field has
// not resolved yet and must not be read as zero.
type Snapshot struct {
	WalletBalance   *big.Int
	Shares          *big.Int
	ConvertedAssets *big.Int
	TotalAssets     *big.Int
	TotalSupply     *big.Int
	ReadAt          time.Time
}

// Metrics are the derived position figures in display units. Pointer fields
// are undefined until their inputs resolve.
type Metrics struct {
	WalletBalance  float64 `json:"wallet_balance"`
	Shares         float64 `json:"shares"`
	DepositedValue float64 `json:"deposited_value"`

	Basis           *float64 `json:"basis,omitempty"`
	YieldEarned     *float64 `json:"yield_earned,omitempty"`
	YieldPercentage *float64 `json:"yield_percentage,omitempty"`

	// APY is the instantaneous share-price premium over 1:1, not a
	// time-annualized rate.
	APY *float64 `json:"apy,omitempty"`

	Ownership   *float64 `json:"ownership_percentage,omitempty"`
	SharePrice  *float64 `json:"share_price,omitempty"`
	TotalAssets *float64 `json:"total_assets,omitempty"`
	TotalSupply *float64 `json:"total_supply,omitempty"`
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithBasisReset clears the captured basis whenever the position is observed
// at zero shares, so the next deposit gets a fresh basis.
func WithBasisReset() TrackerOption {
	return func(t *Tracker) {
		t.resetOnExit = true
	}
}

// Tracker holds the yield basis for one account session.
type Tracker struct {
	mu          sync.Mutex
	basis       *big.Int
	resetOnExit bool
}

// NewTracker creates a tracker with no basis.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe feeds a snapshot to the tracker. The basis is captured the first
// time converted assets are positive and is never overwritten afterwards.
// It reports whether a basis was captured by this call.
func (t *Tracker) Observe(s Snapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resetOnExit && t.basis != nil && s.Shares != nil && s.Shares.Sign() == 0 {
		t.basis = nil
	}
	if t.basis == nil && s.ConvertedAssets != nil && s.ConvertedAssets.Sign() > 0 {
		t.basis = new(big.Int).Set(s.ConvertedAssets)
		return true
	}
	return false
}

// Basis returns the captured basis or nil.
func (t *Tracker) Basis() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.basis == nil {
		return nil
	}
	return new(big.Int).Set(t.basis)
}

// Reset drops the basis. Used when the account changes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.basis = nil
	t.mu.Unlock()
}

// Metrics derives the position figures from s and the current basis.
func (t *Tracker) Metrics(s Snapshot) Metrics {
	return ComputeMetrics(s, t.Basis())
}

var hundred = big.NewRat(100, 1)

// ComputeMetrics derives the position figures from a snapshot and a basis.
// Ratios are computed exactly on the scaled integers and converted at the end.
func ComputeMetrics(s Snapshot, basis *big.Int) Metrics {
	m := Metrics{
		WalletBalance:  ToDisplay(s.WalletBalance),
		Shares:         ToDisplay(s.Shares),
		DepositedValue: ToDisplay(s.ConvertedAssets),
	}

	deposited := s.ConvertedAssets
	if deposited == nil {
		deposited = new(big.Int)
	}

	if basis != nil {
		m.Basis = floatPtr(ToDisplay(basis))
		if deposited.Sign() > 0 {
			earned := new(big.Int).Sub(deposited, basis)
			m.YieldEarned = floatPtr(ToDisplay(earned))
			if basis.Sign() > 0 {
				pct := new(big.Rat).SetFrac(earned, basis)
				m.YieldPercentage = ratFloat(pct.Mul(pct, hundred))
			}
		}
	}

	if s.TotalAssets != nil {
		m.TotalAssets = floatPtr(ToDisplay(s.TotalAssets))
	}
	if s.TotalSupply != nil {
		m.TotalSupply = floatPtr(ToDisplay(s.TotalSupply))
	}

	if s.TotalAssets != nil && s.TotalSupply != nil && s.TotalSupply.Sign() > 0 {
		premium := new(big.Rat).SetFrac(s.TotalAssets, s.TotalSupply)
		premium.Sub(premium, big.NewRat(1, 1))
		m.APY = ratFloat(premium.Mul(premium, hundred))
	}

	if s.Shares != nil && s.Shares.Sign() > 0 {
		if s.TotalSupply != nil && s.TotalSupply.Sign() > 0 {
			own := new(big.Rat).SetFrac(s.Shares, s.TotalSupply)
			m.Ownership = ratFloat(own.Mul(own, hundred))
		}
		if deposited.Sign() > 0 {
			m.SharePrice = ratFloat(new(big.Rat).SetFrac(deposited, s.Shares))
		}
	}

	return m
}

func floatPtr(v float64) *float64 {
	return &v
}

func ratFloat(r *big.Rat) *float64 {
	f, _ := r.Float64()
	return &f
}
