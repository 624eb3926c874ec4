// Prometheus instrumentation for the settlement reconciler.
//
// Label cardinality is bounded: checkpoint states form a closed set and
// node ids are the operator's own small peer list.
package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// reconcileCycles counts completed reconciliation cycles.
	reconcileCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_cycles_total",
			Help: "Total number of completed reconciliation cycles.",
		},
	)

	// invoiceTransitions counts invoices reaching a terminal checkpoint,
	// by state.
	invoiceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_invoice_transitions_total",
			Help: "Invoices moved to a terminal checkpoint state.",
		},
		[]string{"state"},
	)

	// nodeCheckpoint exposes the per-node polling cursor.
	nodeCheckpoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reconciler_node_global_checkpoint",
			Help: "Last fully resolved add_index per node.",
		},
		[]string{"node"},
	)

	// sweptRequests counts invoice requests removed by the retention
	// sweeper.
	sweptRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_swept_requests_total",
			Help: "Invoice requests deleted by the retention sweeper.",
		},
	)

	// payouts counts payout attempts by outcome.
	payouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_total",
			Help: "Award payout attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		reconcileCycles,
		invoiceTransitions,
		nodeCheckpoint,
		sweptRequests,
		payouts,
	)
}
