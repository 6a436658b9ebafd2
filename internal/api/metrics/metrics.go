// Package metrics defines and registers all custom Prometheus metrics for the
// library circulation API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "library"

// ── Circulation metrics ───────────────────────────────────────────────────────

// BorrowsTotal counts borrow attempts by outcome.
// Label:
//   - result: "created", "replayed", "unavailable", "book_not_found",
//     "user_not_found", "invalid", "key_reused", "error"
var BorrowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "borrows_total",
		Help:      "Total number of borrow attempts, by outcome.",
	},
	[]string{"result"},
)

// ReturnsTotal counts return attempts by outcome.
// Label:
//   - result: "returned", "checked_in", "not_found", "error"
var ReturnsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "returns_total",
		Help:      "Total number of return attempts, by outcome.",
	},
	[]string{"result"},
)

// ── Availability metrics ──────────────────────────────────────────────────────

// ReleaseRetriesTotal counts background release attempts.
// Label:
//   - result: "success", "failed", "superseded", "dropped"
var ReleaseRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "release_retries_total",
		Help:      "Total number of background availability release attempts, by result.",
	},
	[]string{"result"},
)

// ReleaseQueueDepth tracks the number of book ids waiting in each retrier worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var ReleaseQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "release_queue_depth",
		Help:      "Current number of pending releases in each retrier worker channel.",
	},
	[]string{"worker_id"},
)

// BooksReconciledTotal counts stranded books released by the reconciler.
var BooksReconciledTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "books_reconciled_total",
		Help:      "Total number of unavailable books with no outstanding borrow released by the reconciler.",
	},
)

// ── Overdue sweep metrics ─────────────────────────────────────────────────────

// OverdueMarkedTotal counts borrows moved from active to overdue.
var OverdueMarkedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "overdue_marked_total",
		Help:      "Total number of borrows marked overdue by the sweep.",
	},
)

// OverdueSweepDuration measures one full sweep pass.
var OverdueSweepDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "overdue_sweep_duration_seconds",
		Help:      "Duration of an overdue sweep pass.",
		Buckets:   prometheus.DefBuckets,
	},
)
