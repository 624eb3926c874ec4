// Invoice HTTP handlers.
//
// This file exposes the payment-facing REST endpoints:
//   - POST /invoices        (create an action invoice, idempotent on node+memo)
//   - GET  /payments/check  (poll the settlement checkpoint for a memo)
//   - POST /verifymessage   (verify a detached signature, recover the signer)
//   - GET  /nodes           (list enabled lightning nodes)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
	"github.com/lnboard/go-lnboard-backend/internal/services"
	"github.com/lnboard/go-lnboard-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// InvoiceService defines the invoice operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type InvoiceService interface {
	// CreateInvoice returns the invoice for (nodeID, memo), creating it on
	// the node when absent. A zero nodeID selects the best enabled node.
	CreateInvoice(ctx context.Context, nodeID uint, memo string) (*domain.Invoice, error)
	// CheckPayment reports the checkpoint state for (nodeID, memo).
	CheckPayment(ctx context.Context, nodeID uint, memo string) (*domain.Invoice, error)
	// VerifyMessage verifies a signature and recovers the signer pubkey.
	VerifyMessage(ctx context.Context, nodeID uint, msg, sig string) (lnclient.VerifyResult, error)
	// ListNodes returns enabled nodes, best quality score first.
	ListNodes(ctx context.Context) ([]domain.Node, error)
}

// PayoutService defines the payout operation consumed by HTTP handlers.
type PayoutService interface {
	// Claim pays out a bounty award against a signed payment request.
	Claim(ctx context.Context, awardID, nodeID uint, payReq, sig string) (services.PayoutResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for invoices, payouts, verification, and
// node listing. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	invSvc    InvoiceService
	payoutSvc PayoutService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(invSvc InvoiceService, payoutSvc PayoutService) *Handlers {
	return &Handlers{invSvc: invSvc, payoutSvc: payoutSvc}
}

//
// DTOs
//

// CreateInvoiceRequest is the JSON payload for creating an action invoice.
type CreateInvoiceRequest struct {
	// NodeID selects the issuing node; zero picks the best enabled node.
	NodeID uint `json:"node_id"`
	// Memo is the encoded action memo the invoice settles.
	Memo string `json:"memo" binding:"required"`
}

// InvoiceResponse is the wire shape of an invoice.
type InvoiceResponse struct {
	NodeID          uint   `json:"node_id"`
	AddIndex        uint64 `json:"add_index"`
	PayReq          string `json:"pay_req"`
	RHash           string `json:"r_hash"`
	CheckpointValue string `json:"checkpoint_value"`
	ActionType      string `json:"action_type,omitempty"`
	ActionID        int64  `json:"action_id,omitempty"`
}

// VerifyMessageRequest is the JSON payload for signature verification.
type VerifyMessageRequest struct {
	NodeID uint   `json:"node_id"`
	Msg    string `json:"msg" binding:"required"`
	Sig    string `json:"sig" binding:"required"`
}

func invoiceResponse(inv *domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		NodeID:          inv.NodeID,
		AddIndex:        inv.AddIndex,
		PayReq:          inv.PayReq,
		RHash:           inv.RHash,
		CheckpointValue: inv.CheckpointValue,
		ActionType:      inv.ActionType,
		ActionID:        inv.ActionID,
	}
}

// isMemoErr reports whether err is a memo decode/validation failure, which
// maps to a 400 with the memo_invalid code.
func isMemoErr(err error) bool {
	for _, target := range []error{
		memo.ErrMemoTooLarge,
		memo.ErrBadPrefix,
		memo.ErrNotBase64,
		memo.ErrNotCompressed,
		memo.ErrNotUTF8,
		memo.ErrNotJSON,
		memo.ErrMemoInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

//
// Handlers
//

// CreateInvoice creates (or returns) the invoice for a memo. Repeated calls
// with the same node and memo return the same invoice, so clients can retry
// freely before paying.
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	inv, err := h.invSvc.CreateInvoice(c.Request.Context(), req.NodeID, req.Memo)
	if err != nil {
		switch {
		case isMemoErr(err):
			fail(c, http.StatusBadRequest, ErrCodeMemoInvalid, err.Error())
		case errors.Is(err, services.ErrMemoRequired):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrNodeNotFound), errors.Is(err, services.ErrNoEnabledNodes):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, invoiceResponse(inv))
}

// CheckPayment polls the settlement checkpoint for (node_id, memo). A 404
// means no invoice exists yet for the memo; the checkpoint_value in a 200
// tells the client whether the action ran and how it ended.
func (h *Handlers) CheckPayment(c *gin.Context) {
	encodedMemo := c.Query("memo")
	if encodedMemo == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "memo query parameter required")
		return
	}
	// Lax parse: garbage node_id falls back to "no preference".
	nodeID := utils.UintDefault(c.Query("node_id"), 0)

	inv, err := h.invSvc.CheckPayment(c.Request.Context(), nodeID, encodedMemo)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvoiceNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
		case errors.Is(err, services.ErrNodeNotFound), errors.Is(err, services.ErrNoEnabledNodes):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, invoiceResponse(inv))
}

// VerifyMessage verifies a detached signature and returns validity plus the
// recovered signer pubkey.
func (h *Handlers) VerifyMessage(c *gin.Context) {
	var req VerifyMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "msg and sig required")
		return
	}

	res, err := h.invSvc.VerifyMessage(c.Request.Context(), req.NodeID, req.Msg, req.Sig)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNodeNotFound), errors.Is(err, services.ErrNoEnabledNodes):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}

// ListNodes returns the enabled lightning nodes, best quality score first.
func (h *Handlers) ListNodes(c *gin.Context) {
	nodes, err := h.invSvc.ListNodes(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"nodes": nodes})
}
