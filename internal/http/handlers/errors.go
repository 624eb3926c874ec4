// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase, snake_case, and stable: clients branch on them for
// programmatic error handling while the message field stays human-readable.
// Generic codes mirror common HTTP status semantics; domain-specific codes
// cover business errors that a status alone cannot convey.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeMemoInvalid      = "memo_invalid"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodePayoutRefused    = "payout_refused"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
