// Package lnclient abstracts the lightning daemon RPC surface consumed by
// the payment core. The Client interface is the only way the core talks to
// a payment node; it has two implementations — CLIClient, which drives the
// lncli binary, and FakeClient, a deterministic in-memory node for tests.
// The implementation is selected by configuration, never by a runtime flag.
package lnclient

import (
	"context"
	"time"
)

// Invoice state values as reported by the node.
const (
	StateOpen     = "OPEN"
	StateSettled  = "SETTLED"
	StateCanceled = "CANCELED"
)

// FailureType classifies a non-fatal client failure.
type FailureType string

const (
	// FailureTimeout means the call exceeded its deadline.
	FailureTimeout FailureType = "timeout"
	// FailureExit means the call completed but reported an error.
	FailureExit FailureType = "exit"
)

// AddResult is the node's response to invoice creation.
type AddResult struct {
	PayReq   string `json:"pay_req"`
	RHash    string `json:"r_hash"`
	AddIndex uint64 `json:"add_index,string"`
}

// InvoiceRecord is one node-side invoice as returned by ListInvoices.
type InvoiceRecord struct {
	Memo           string `json:"memo"`
	PaymentRequest string `json:"payment_request"`
	RHash          string `json:"r_hash"`
	AddIndex       uint64 `json:"add_index,string"`
	Settled        bool   `json:"settled"`
	State          string `json:"state"`
	CreationDate   int64  `json:"creation_date,string"`
	SettleDate     int64  `json:"settle_date,string"`
	Expiry         int64  `json:"expiry,string"`
}

// ListResult is a page of node-side invoices ordered by add_index.
type ListResult struct {
	Invoices         []InvoiceRecord `json:"invoices"`
	FirstIndexOffset uint64          `json:"first_index_offset,string"`
	LastIndexOffset  uint64          `json:"last_index_offset,string"`
}

// VerifyResult reports signature validity and the recovered signer.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Pubkey string `json:"pubkey"`
}

// DecodeResult is the outcome of decoding a payment request. On failure,
// Success is false and FailureType/Stdouterr describe the fault; the
// failure is surfaced to the caller, never raised.
type DecodeResult struct {
	Success     bool        `json:"success"`
	NumSatoshis int64       `json:"num_satoshis,string"`
	NumMsat     int64       `json:"num_msat,string"`
	FailureType FailureType `json:"failure_type,omitempty"`
	Stdouterr   string      `json:"stdouterr,omitempty"`
}

// PayResult is the outcome of paying an invoice, with the same failure
// shape as DecodeResult.
type PayResult struct {
	Success     bool        `json:"success"`
	FailureType FailureType `json:"failure_type,omitempty"`
	Stdouterr   string      `json:"stdouterr,omitempty"`
}

// Client is the ledger-client contract. rpcserver selects the node; all
// calls honor the context deadline and surface transport failures as typed
// results or errors, never panics.
type Client interface {
	// AddInvoice creates an invoice for memo with the given amount and
	// expiry, returning the node-assigned pay_req, r_hash and add_index.
	AddInvoice(ctx context.Context, rpcserver, memo string, amt int64, expiry time.Duration) (AddResult, error)

	// ListInvoices returns up to max invoices starting at indexOffset,
	// in ascending add_index order.
	ListInvoices(ctx context.Context, rpcserver string, indexOffset uint64, max int) (ListResult, error)

	// VerifyMessage checks a signature over msg and recovers the signer
	// identity pubkey.
	VerifyMessage(ctx context.Context, rpcserver, msg, sig string) (VerifyResult, error)

	// DecodePayReq decodes a BOLT11 payment request.
	DecodePayReq(ctx context.Context, rpcserver, payReq string) DecodeResult

	// PayInvoice pays a BOLT11 payment request.
	PayInvoice(ctx context.Context, rpcserver, payReq string) PayResult
}
