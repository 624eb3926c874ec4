// Package services implements the payment core: invoice creation and
// lookup, the settlement reconciler, the action dispatcher, and the award
// payout controller. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrNodeNotFound indicates the requested lightning node does not
	// exist or is disabled.
	ErrNodeNotFound = errors.New("lightning node not found")

	// ErrNoEnabledNodes is returned when node selection finds no enabled
	// node to work with.
	ErrNoEnabledNodes = errors.New("no enabled lightning nodes")

	// ErrInvoiceNotFound indicates no invoice exists yet for the given
	// (node, memo) pair. For payment checks this means "still waiting".
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrMemoRequired is returned when an operation is missing its memo.
	ErrMemoRequired = errors.New("memo was not provided")

	// ErrInvoiceCreateExhausted is returned when the bounded create loop
	// could not produce a local invoice row for an existing request.
	ErrInvoiceCreateExhausted = errors.New("invoice creation attempts exhausted")

	// ErrUnacceptUnsupported marks the explicitly unsupported path of
	// reversing an accepted answer. It is surfaced, never executed.
	ErrUnacceptUnsupported = errors.New("un-accepting an answer is not supported")

	// ErrAwardNotFound indicates the payout request names an unknown
	// bounty award.
	ErrAwardNotFound = errors.New("bounty award not found")
)
