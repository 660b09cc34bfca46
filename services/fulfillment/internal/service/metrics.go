package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StockOperations counts stock item operations by outcome: success,
	// rejected (business rule), conflict (retries exhausted) or error.
	StockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_stock_operations_total",
			Help: "Total number of stock item operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// OCCRetries counts optimistic concurrency retries per aggregate type.
	OCCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_occ_retries_total",
			Help: "Total number of optimistic concurrency retries",
		},
		[]string{"aggregate"},
	)

	// InvariantViolations counts structural inconsistencies found after an operation.
	InvariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_invariant_violations_total",
			Help: "Total number of aggregate invariant violations detected",
		},
		[]string{"aggregate"},
	)

	// OrderTransitions counts order state transitions.
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_total",
			Help: "Total number of order state transitions",
		},
		[]string{"from", "to"},
	)
)

// Operation results used as metric label values.
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultConflict = "conflict"
	resultError    = "error"
)
