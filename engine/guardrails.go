package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guardrails gate agent runs per user.
type Guardrails interface {
	Check(ctx context.Context, userID string) (*GuardrailResult, error)
	RecordSuccess(ctx context.Context, userID string)
	RecordFailure(ctx context.Context, userID string)
}

// GuardrailResult is the outcome of a check.
type GuardrailResult struct {
	Allowed bool
	Warning string
}

// RateLimitConfig configures RateLimitGuardrails.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained run rate per user.
	RequestsPerMinute float64
	Burst             int

	// MaxConsecutiveFailures opens the breaker for a user. Zero disables it.
	MaxConsecutiveFailures int
	Cooldown               time.Duration
}

// DefaultRateLimitConfig allows 20 runs a minute with a breaker after five
// failed runs in a row.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerMinute:      20,
	Burst:                  5,
	MaxConsecutiveFailures: 5,
	Cooldown:               time.Minute,
}

type userGuard struct {
	limiter   *rate.Limiter
	failures  int
	openUntil time.Time
}

// RateLimitGuardrails is a per-user token bucket with a failure breaker.
type RateLimitGuardrails struct {
	cfg   RateLimitConfig
	mu    sync.Mutex
	users map[string]*userGuard
	now   func() time.Time
}

// NewRateLimitGuardrails creates guardrails from cfg.
func NewRateLimitGuardrails(cfg RateLimitConfig) *RateLimitGuardrails {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimitConfig.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultRateLimitConfig.Cooldown
	}
	return &RateLimitGuardrails{cfg: cfg, users: make(map[string]*userGuard), now: time.Now}
}

func (g *RateLimitGuardrails) user(userID string) *userGuard {
	u, ok := g.users[userID]
	if !ok {
		u = &userGuard{limiter: rate.NewLimiter(rate.Limit(g.cfg.RequestsPerMinute/60), g.cfg.Burst)}
		g.users[userID] = u
	}
	return u
}

// Check implements Guardrails.
func (g *RateLimitGuardrails) Check(_ context.Context, userID string) (*GuardrailResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	now := g.now()
	if now.Before(u.openUntil) {
		return &GuardrailResult{
			Allowed: false,
			Warning: fmt.Sprintf("too many failed requests, retry after %s", u.openUntil.Sub(now).Round(time.Second)),
		}, nil
	}
	if !u.limiter.AllowN(now, 1) {
		return &GuardrailResult{Allowed: false, Warning: "rate limit exceeded"}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

// RecordSuccess implements Guardrails.
func (g *RateLimitGuardrails) RecordSuccess(_ context.Context, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.user(userID)
	u.failures = 0
	u.openUntil = time.Time{}
}

// RecordFailure implements Guardrails.
func (g *RateLimitGuardrails) RecordFailure(_ context.Context, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.user(userID)
	u.failures++
	if g.cfg.MaxConsecutiveFailures > 0 && u.failures >= g.cfg.MaxConsecutiveFailures {
		u.openUntil = g.now().Add(g.cfg.Cooldown)
		u.failures = 0
	}
}
