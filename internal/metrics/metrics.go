// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groupledger"

var (
	// LedgerPasses counts engine operations by outcome
	// ("ok" or the ledger error code).
	LedgerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_passes_total",
		Help:      "Ledger engine operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	// BalanceMutations counts balance row writes by kind
	// (create, update, delete).
	BalanceMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_mutations_total",
		Help:      "Balance row writes by kind.",
	}, []string{"kind"})

	// AuditFailures counts transaction history writes that failed and were dropped.
	AuditFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Best-effort audit writes that failed, by event.",
	}, []string{"event"})

	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_duration_seconds",
		Help:      "RPC handling latency by procedure and connect code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"procedure", "code"})
)
