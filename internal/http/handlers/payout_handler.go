// Payout HTTP handler.
//
// POST /payouts executes a bounty award payout claim. Refusals (bad
// signature, wrong recipient, already paid, amount mismatch, node failures)
// come back as 200 responses with ok=false and a human-readable message, so
// a client can show the reason directly; only infrastructure faults surface
// as errors.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lnboard/go-lnboard-backend/internal/services"
)

// PayoutRequest is the JSON payload for claiming a bounty award payout.
type PayoutRequest struct {
	// AwardID names the bounty award being claimed.
	AwardID uint `json:"award_id" binding:"required"`
	// NodeID optionally pins the node used to verify and pay; zero selects
	// the best enabled node.
	NodeID uint `json:"node_id"`
	// PayReq is the claimant's BOLT11 invoice for the owed amount.
	PayReq string `json:"pay_req" binding:"required"`
	// Sig is the claimant's signature over PayReq, proving control of the
	// winning author's node key.
	Sig string `json:"sig" binding:"required"`
}

// ClaimPayout executes a payout claim.
func (h *Handlers) ClaimPayout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "award_id, pay_req and sig required")
		return
	}

	res, err := h.payoutSvc.Claim(c.Request.Context(), req.AwardID, req.NodeID, req.PayReq, req.Sig)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAwardNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "bounty award not found")
		case errors.Is(err, services.ErrNoEnabledNodes), errors.Is(err, services.ErrNodeNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}
