// Package services – PayoutService
//
// Paying out a bounty award moves real sats, so this controller is the
// strictest path in the service layer: the claimant proves control of the
// winning author's node key by signing the payment request they want paid,
// the owed amount is recomputed from the bounty rows at claim time, and
// the whole claim runs under a per-award lock so two claims for the same
// award serialize instead of double-paying.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/forum"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
)

// PayoutResult is the user-facing outcome of a payout claim. OK is true
// only when the node accepted the payment; Message explains every refusal
// in terms the claimant can act on.
type PayoutResult struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	AmountSat int64  `json:"amount_sat,omitempty"`
}

// awardLocks hands out one mutex per award id. Locks are never removed;
// the award space is small and bounded by real bounties.
type awardLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func (l *awardLocks) get(id uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[uint]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// PayoutService executes bounty award payouts.
type PayoutService struct {
	DB    *gorm.DB
	LN    lnclient.Client
	Forum forum.Backend

	locks awardLocks

	// Now supplies timestamps; defaults to time.Now when nil.
	Now func() time.Time

	Log zerolog.Logger
}

// NewPayoutService constructs a PayoutService.
func NewPayoutService(db *gorm.DB, ln lnclient.Client, f forum.Backend, log zerolog.Logger) *PayoutService {
	return &PayoutService{DB: db, LN: ln, Forum: f, Log: log}
}

func (s *PayoutService) nowUTC() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func refuse(outcome, message string) PayoutResult {
	payouts.WithLabelValues(outcome).Inc()
	return PayoutResult{OK: false, Message: message}
}

// Claim pays out a bounty award. payReq is the claimant's invoice for the
// owed amount; sig is the claimant's signature over payReq, which must
// recover to the winning author's node key. A zero nodeID selects the best
// enabled node, the same way invoice creation does.
//
// The returned error is reserved for infrastructure faults; every policy
// refusal comes back as an unsuccessful PayoutResult instead.
func (s *PayoutService) Claim(ctx context.Context, awardID, nodeID uint, payReq, sig string) (PayoutResult, error) {
	// Serialize concurrent claims for the same award. The conditional
	// update in MarkBountiesPaid is the backstop; the lock keeps the
	// loser from paying the node before discovering the race.
	lock := s.locks.get(awardID)
	lock.Lock()
	defer lock.Unlock()

	award, err := repo.GetAward(ctx, s.DB, awardID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return PayoutResult{}, ErrAwardNotFound
		}
		return PayoutResult{}, err
	}
	bounty, err := repo.GetBounty(ctx, s.DB, award.BountyID)
	if err != nil {
		return PayoutResult{}, err
	}
	winningPost, err := s.Forum.GetPost(ctx, award.PostID)
	if err != nil {
		return PayoutResult{}, err
	}
	winner, err := s.Forum.GetUser(ctx, winningPost.AuthorID)
	if err != nil {
		return PayoutResult{}, err
	}

	node, err := resolveNode(ctx, s.DB, nodeID)
	if err != nil {
		return PayoutResult{}, err
	}

	// The claimant signs the exact payment request they want paid, which
	// binds the signature to this claim and nothing else.
	vr, err := s.LN.VerifyMessage(ctx, node.RPCServer, payReq, sig)
	if err != nil {
		return PayoutResult{}, err
	}
	if !vr.Valid {
		return refuse("signature_invalid", "signature invalid"), nil
	}
	if vr.Pubkey != winner.PubKey {
		return refuse("wrong_recipient",
			fmt.Sprintf("wrong recipient: this award belongs to %s", winner.Name)), nil
	}

	owed, err := repo.SumOwedBounties(ctx, s.DB, bounty.PostID)
	if err != nil {
		return PayoutResult{}, err
	}
	if owed <= 0 {
		return refuse("already_paid", "already paid out"), nil
	}

	dec := s.LN.DecodePayReq(ctx, node.RPCServer, payReq)
	if !dec.Success {
		if dec.FailureType == lnclient.FailureTimeout {
			return refuse("decode_timeout", "could not decode payment request: node timed out, try again"), nil
		}
		return refuse("decode_exit", "could not decode payment request"), nil
	}
	// The msat amount is authoritative; NumSatoshis is a truncated view of
	// it, so both are held against the owed total and fractional-sat
	// requests are refused outright.
	if dec.NumMsat%1000 != 0 {
		return refuse("amount_mismatch",
			fmt.Sprintf("payment request is for %d msat; a payout must be a whole number of sats", dec.NumMsat)), nil
	}
	if dec.NumSatoshis != owed || dec.NumMsat/1000 != owed {
		return refuse("amount_mismatch",
			fmt.Sprintf("payment request is for %d sats but %d sats are owed", dec.NumSatoshis, owed)), nil
	}

	pay := s.LN.PayInvoice(ctx, node.RPCServer, payReq)
	if !pay.Success {
		s.Log.Error().
			Uint("award_id", awardID).
			Str("failure", string(pay.FailureType)).
			Str("detail", pay.Stdouterr).
			Msg("payout payment failed")
		if pay.FailureType == lnclient.FailureTimeout {
			// The payment may still complete on the node. Leave the
			// bounties unmarked and let the operator reconcile.
			return refuse("pay_timeout", "payment timed out, contact the operator before retrying"), nil
		}
		return refuse("pay_exit", "payment failed"), nil
	}

	marked, err := repo.MarkBountiesPaid(ctx, s.DB, bounty.PostID, s.nowUTC())
	if err != nil {
		// Paid but not recorded. Surface loudly; retrying the claim must
		// not pay twice, and the conditional update makes re-marking safe.
		s.Log.Error().Uint("award_id", awardID).Err(err).Msg("paid but failed to mark bounties")
		return PayoutResult{}, err
	}
	if marked == 0 {
		return refuse("already_paid", "already paid out"), nil
	}

	payouts.WithLabelValues("paid").Inc()
	s.Log.Info().
		Uint("award_id", awardID).
		Int64("amount_sat", owed).
		Str("recipient", winner.PubKey).
		Msg("award paid out")
	return PayoutResult{OK: true, Message: "paid", AmountSat: owed}, nil
}
