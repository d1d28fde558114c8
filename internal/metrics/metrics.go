// Package metrics exposes the check engine's operational counters as
// Prometheus collectors, grounded on the client_golang stack pulled in
// (indirectly) by the k8s-controller exercise's controller-runtime metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups everything the check engine reports.
type Collectors struct {
	ChecksDispatched prometheus.Counter
	Discards         prometheus.Counter
	Skips            prometheus.Counter
	ScanDuration     prometheus.Histogram
	QueuesScanned    prometheus.Counter
	ScanErrors       prometheus.Counter
	HalfOffsetLag    *prometheus.GaugeVec
	OpOffsetLag      *prometheus.GaugeVec
}

// New registers and returns the check engine's collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		ChecksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "halfcheck",
			Name:      "checks_dispatched_total",
			Help:      "Number of back-check RPCs dispatched to producer groups.",
		}),
		Discards: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "halfcheck",
			Name:      "discards_total",
			Help:      "Number of half messages discarded for exhausting transactionCheckMax.",
		}),
		Skips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "halfcheck",
			Name:      "skips_total",
			Help:      "Number of half messages skipped for exceeding the file retention window.",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "halfcheck",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of one check tick across all half queues.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueuesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "halfcheck",
			Name:      "queues_scanned_total",
			Help:      "Number of half queues successfully scanned.",
		}),
		ScanErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "halfcheck",
			Name:      "scan_errors_total",
			Help:      "Number of per-queue scan exceptions caught at the CheckEngine boundary.",
		}),
		HalfOffsetLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "halfcheck",
			Name:      "half_consume_offset",
			Help:      "Last persisted HALF consume offset per queue.",
		}, []string{"queue"}),
		OpOffsetLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "halfcheck",
			Name:      "op_consume_offset",
			Help:      "Last persisted OP consume offset per queue.",
		}, []string{"queue"}),
	}
}
