package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_fulfilled_total",
		Help: "Total number of orders run through fulfillment",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of orders rejected before any grant was written",
	}, []string{"reason"})

	FulfillmentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_outcomes_total",
		Help: "Per-product fulfillment outcomes",
	}, []string{"outcome"})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_latency_seconds",
		Help:    "Latency of fulfilling one order",
		Buckets: prometheus.DefBuckets,
	})

	AssetMappingMissingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asset_mapping_missing_total",
		Help: "Lookups that found no usable asset locator",
	})

	GrantsUpsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grants_upserted_total",
		Help: "Total number of grant writes",
	}, []string{"status"})

	LedgerWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_write_failures_total",
		Help: "Total number of failed grant writes",
	})

	GrantsRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grants_revoked_total",
		Help: "Total number of grants revoked by administrators",
	})

	AccessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decisions_total",
		Help: "Access checks by resulting state",
	}, []string{"state"})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_runs_total",
		Help: "Reconciliation runs by result",
	}, []string{"result"})

	ReconcileGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_grants_total",
		Help: "Grants examined by reconciliation, by action taken",
	}, []string{"action"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of reconciliation runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	HistoryPurgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_purges_total",
		Help: "Purchase history purges by result",
	}, []string{"result"})

	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "Consumed events by type and result",
	}, []string{"type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
