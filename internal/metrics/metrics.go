package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Price lookups by mode (single|batch) and result (found|not_found|error).
	MatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_match_requests_total",
			Help: "Total number of price match lookups.",
		},
		[]string{"mode", "result"},
	)

	// Duration of candidate lookups against the catalog store.
	CatalogLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricelens_catalog_lookup_duration_seconds",
			Help:    "Duration of catalog candidate lookups in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms → ~8s
		},
		[]string{"source"}, // cache | store
	)

	// Feed records seen by a reconciliation run, by stage.
	ReconcileRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_reconcile_records_total",
			Help: "Feed records processed by reconciliation, by stage.",
		},
		[]string{"stage"}, // parsed | skipped | changed | applied
	)

	// Upsert batches by result.
	UpsertBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_upsert_batches_total",
			Help: "Bulk upsert batches issued against the price store.",
		},
		[]string{"result"}, // ok | error
	)

	ReconcileRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricelens_reconcile_run_duration_seconds",
			Help:    "Wall time of a full reconciliation run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)
