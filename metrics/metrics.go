// Package metrics exposes the prometheus collectors for the vault agent.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics groups the collectors touched by the orchestrator, the chain
// adapter and the tool layer.
type VaultMetrics struct {
	submitted   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	settle      *prometheus.HistogramVec
	chainCalls  *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	apy         prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide collectors, registering them on first use.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_submitted_total",
				Help: "Operations accepted for submission by kind.",
			}, []string{"kind"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operation_transitions_total",
				Help: "Operation phase transitions by kind and destination phase.",
			}, []string{"kind", "phase"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operation_failures_total",
				Help: "Failed operations by kind and the phase they failed in.",
			}, []string{"kind", "stage"}),
			settle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vault_operation_settle_seconds",
				Help:    "Time from submission to settlement.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			}, []string{"kind"}),
			chainCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_chain_calls_total",
				Help: "Contract calls by method and result.",
			}, []string{"method", "result"}),
			toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_tool_calls_total",
				Help: "Agent tool invocations by tool and outcome.",
			}, []string{"tool", "outcome"}),
			apy: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_share_premium_percent",
				Help: "Last observed share-price premium (totalAssets/totalSupply - 1) * 100.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.submitted,
			vaultRegistry.transitions,
			vaultRegistry.failures,
			vaultRegistry.settle,
			vaultRegistry.chainCalls,
			vaultRegistry.toolCalls,
			vaultRegistry.apy,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveSubmitted(kind string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(orUnknown(kind)).Inc()
}

func (m *VaultMetrics) ObserveTransition(kind, phase string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(orUnknown(kind), orUnknown(phase)).Inc()
}

func (m *VaultMetrics) ObserveFailure(kind, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(orUnknown(kind), orUnknown(stage)).Inc()
}

func (m *VaultMetrics) ObserveSettled(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settle.WithLabelValues(orUnknown(kind)).Observe(elapsed.Seconds())
}

func (m *VaultMetrics) ObserveChainCall(method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.chainCalls.WithLabelValues(orUnknown(method), result).Inc()
}

func (m *VaultMetrics) ObserveToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.toolCalls.WithLabelValues(orUnknown(tool), outcome).Inc()
}

func (m *VaultMetrics) SetSharePremium(pct float64) {
	if m == nil {
		return
	}
	m.apy.Set(pct)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
