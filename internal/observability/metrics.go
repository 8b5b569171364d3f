// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Watcher metrics
	DepositsDetected  *prometheus.CounterVec
	LamportsReceived  *prometheus.CounterVec
	SnapshotUpdates   prometheus.Counter
	SubscriptionDrops prometheus.Counter

	// Attribution metrics
	FeesAttributed   prometheus.Counter
	OrphanedEvents   prometheus.Counter
	OrphanedLamports prometheus.Counter
	AssetsDiscovered prometheus.Counter
	RegistryEvicted  prometheus.Counter

	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CyclesSkipped    *prometheus.CounterVec
	PendingFees      *prometheus.GaugeVec
	SelectedSlot     prometheus.Gauge

	// Dead-letter metrics
	DeadLettersAppended *prometheus.CounterVec
	DeadLettersExpired  prometheus.Counter
	DeadLettersResolved prometheus.Counter
	DeadLetterRetryable prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
	HighestSlotSeen     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_burn_engine"
	}

	return &Metrics{
		DepositsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "deposits_detected_total",
			Help:      "Total number of positive balance deltas detected by vault kind",
		}, []string{"vault"}),
		LamportsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "lamports_received_total",
			Help:      "Total lamports received across detected deposits by vault kind",
		}, []string{"vault"}),
		SnapshotUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "snapshot_updates_total",
			Help:      "Total number of vault snapshot updates (all deltas)",
		}),
		SubscriptionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "subscription_drops_total",
			Help:      "Total number of account subscription channel closures",
		}),

		FeesAttributed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "fees_attributed_total",
			Help:      "Total number of fee events attributed to an asset",
		}),
		OrphanedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "orphaned_events_total",
			Help:      "Total number of fee events that could not be attributed",
		}),
		OrphanedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "orphaned_lamports_total",
			Help:      "Total lamports across orphaned fee events",
		}),
		AssetsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "assets_discovered_total",
			Help:      "Total number of assets discovered from attribution",
		}),
		RegistryEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attribution",
			Name:      "registry_evicted_total",
			Help:      "Total number of asset records evicted from the bounded registry",
		}),

		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of cycle passes by outcome",
		}, []string{"outcome"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Cycle pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CyclesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "skipped_total",
			Help:      "Total number of cycle passes skipped by reason",
		}, []string{"reason"}),
		PendingFees: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "pending_fees",
			Help:      "Current pending fees by asset",
		}, []string{"asset"}),
		SelectedSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "selected_slot",
			Help:      "Slot used for the most recent selection",
		}),

		DeadLettersAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "appended_total",
			Help:      "Total number of dead-letter entries appended by classification",
		}, []string{"class"}),
		DeadLettersExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "expired_total",
			Help:      "Total number of dead-letter entries expired",
		}),
		DeadLettersResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "resolved_total",
			Help:      "Total number of dead-letter entries resolved",
		}),
		DeadLetterRetryable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "retryable",
			Help:      "Retryable entries found on the most recent queue scan",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful cycle execution",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDeposit records a detected vault deposit.
func RecordDeposit(vault string, lamports uint64) {
	DefaultMetrics.DepositsDetected.WithLabelValues(vault).Inc()
	DefaultMetrics.LamportsReceived.WithLabelValues(vault).Add(float64(lamports))
}

// RecordSnapshotUpdate records a vault snapshot advance.
func RecordSnapshotUpdate(slot int64) {
	DefaultMetrics.SnapshotUpdates.Inc()
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordAttributed increments the attribution success counter.
func RecordAttributed() {
	DefaultMetrics.FeesAttributed.Inc()
}

// RecordOrphaned records an unattributable fee event.
func RecordOrphaned(lamports uint64) {
	DefaultMetrics.OrphanedEvents.Inc()
	DefaultMetrics.OrphanedLamports.Add(float64(lamports))
}

// RecordAssetDiscovered increments the discovered assets counter.
func RecordAssetDiscovered() {
	DefaultMetrics.AssetsDiscovered.Inc()
}

// RecordCycle records a completed cycle pass.
func RecordCycle(outcome string, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
}

// RecordCycleSkipped records a quietly skipped cycle pass.
func RecordCycleSkipped(reason string) {
	DefaultMetrics.CyclesSkipped.WithLabelValues(reason).Inc()
}

// RecordDeadLetter records an appended dead-letter entry.
func RecordDeadLetter(class string) {
	DefaultMetrics.DeadLettersAppended.WithLabelValues(class).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
