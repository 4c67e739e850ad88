// Package metrics defines the prometheus collectors exported by the wallet service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer outcomes.
const (
	Rejected  = "rejected"
	Broadcast = "broadcast"
	Ambiguous = "ambiguous"
	Failed    = "failed"
	Orphaned  = "orphaned" // broadcast but not persisted
)

// Webhook outcomes.
const (
	BadSignature = "bad_signature"
	Accepted     = "accepted"
	Unmatched    = "unmatched"
	Reconciled   = "reconciled"
)

//nolint:gochecknoglobals // collectors are registered once per process
var (
	WalletsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custody_wallets_created_total",
		Help: "The total number of custodial wallets created",
	})
	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transfers_total",
		Help: "Transfers by outcome",
	}, []string{"net", "outcome"})
	ProviderCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_provider_call_duration_seconds",
		Help:    "Duration of chain data provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op", "result"})
	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"source", "outcome"})
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transfer_status_transitions_total",
		Help: "Transfer record status transitions",
	}, []string{"from", "to"})
)

// ObserveCall records the duration of a provider call started at begin.
func ObserveCall(provider, op string, begin time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	ProviderCalls.WithLabelValues(provider, op, result).Observe(time.Since(begin).Seconds())
}
