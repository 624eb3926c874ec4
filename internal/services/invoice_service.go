// Package services – InvoiceService
//
// This file implements invoice creation and payment checking. Creation is
// idempotent on (node, memo): the invoice request row is the source of
// truth, and a bounded retry loop closes the gap left by a crash between
// persisting the request and persisting the node-issued invoice.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
)

// InvoiceService creates invoices, reports their settlement checkpoint,
// and fronts message verification with quality-based node selection.
type InvoiceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// LN is the ledger client used to reach payment nodes.
	LN lnclient.Client
	// Codec validates memos on the way in.
	Codec memo.Codec

	// PaymentAmount is the invoice amount in sats.
	PaymentAmount int64
	// Expiry is the node-side invoice expiry.
	Expiry time.Duration
	// CreateAttempts bounds the create-invoice retry loop.
	CreateAttempts int
	// CreateRetrySleep is slept between create attempts.
	CreateRetrySleep time.Duration

	Log zerolog.Logger
}

// NewInvoiceService constructs an InvoiceService with the configured
// payment parameters and sane retry defaults.
func NewInvoiceService(db *gorm.DB, ln lnclient.Client, codec memo.Codec, amount int64, expiry time.Duration, log zerolog.Logger) *InvoiceService {
	return &InvoiceService{
		DB:               db,
		LN:               ln,
		Codec:            codec,
		PaymentAmount:    amount,
		Expiry:           expiry,
		CreateAttempts:   3,
		CreateRetrySleep: 500 * time.Millisecond,
		Log:              log,
	}
}

// resolveNode maps a caller-supplied node id to an enabled node. Zero means
// "no preference" and selects the enabled node with the highest quality
// score. It is shared by every service that lets the caller pick a node.
func resolveNode(ctx context.Context, db *gorm.DB, nodeID uint) (*domain.Node, error) {
	if nodeID == 0 {
		node, err := repo.TopQOSNode(ctx, db)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrNoEnabledNodes
			}
			return nil, err
		}
		return node, nil
	}
	node, err := repo.GetNode(ctx, db, nodeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	if !node.Enabled {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

// CreateInvoice returns the invoice for (nodeID, encodedMemo), creating it
// on the node when it does not exist yet. Repeated calls before settlement
// return the same invoice. A zero nodeID selects the best enabled node.
//
// The memo must decode and validate structurally before any row is
// written; a malformed memo is rejected with memo.ErrMemoInvalid (or the
// stage-specific decode error).
func (s *InvoiceService) CreateInvoice(ctx context.Context, nodeID uint, encodedMemo string) (*domain.Invoice, error) {
	if encodedMemo == "" {
		return nil, ErrMemoRequired
	}

	m, err := s.Codec.Decode(encodedMemo)
	if err != nil {
		return nil, err
	}
	if _, err := memo.ValidateMemo(m, false); err != nil {
		return nil, err
	}

	node, err := resolveNode(ctx, s.DB, nodeID)
	if err != nil {
		return nil, err
	}

	req, err := repo.GetOrCreateInvoiceRequest(ctx, s.DB, node.ID, encodedMemo)
	if err != nil {
		return nil, err
	}

	// The request may exist without an invoice if a previous attempt
	// crashed between the node call and the local insert. An explicit
	// bounded loop with sleep replaces unbounded self-retry.
	attempts := s.CreateAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		inv, err := repo.GetInvoiceByRequest(ctx, s.DB, req.ID)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}

		added, err := s.LN.AddInvoice(ctx, node.RPCServer, encodedMemo, s.PaymentAmount, s.Expiry)
		if err != nil {
			s.Log.Warn().
				Uint("node_id", node.ID).
				Int("attempt", i+1).
				Err(err).
				Msg("addinvoice failed")
		} else {
			inv := &domain.Invoice{
				RequestID: req.ID,
				NodeID:    node.ID,
				AddIndex:  added.AddIndex,
				RHash:     added.RHash,
				PayReq:    added.PayReq,
			}
			if cerr := repo.CreateInvoice(ctx, s.DB, inv); cerr == nil {
				return inv, nil
			}
			// A concurrent creator may have won; the next loop
			// iteration fetches their row.
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.CreateRetrySleep):
			}
		}
	}
	return nil, ErrInvoiceCreateExhausted
}

// CheckPayment reports the checkpoint state for (nodeID, memo).
// ErrInvoiceNotFound means the invoice is not known yet and the caller
// should keep waiting.
func (s *InvoiceService) CheckPayment(ctx context.Context, nodeID uint, encodedMemo string) (*domain.Invoice, error) {
	if encodedMemo == "" {
		return nil, ErrMemoRequired
	}
	node, err := resolveNode(ctx, s.DB, nodeID)
	if err != nil {
		return nil, err
	}
	inv, err := repo.GetInvoiceForMemo(ctx, s.DB, node.ID, encodedMemo)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

// VerifyMessage verifies a signature over msg. When nodeID is zero the
// enabled node with the highest quality score is used.
func (s *InvoiceService) VerifyMessage(ctx context.Context, nodeID uint, msg, sig string) (lnclient.VerifyResult, error) {
	node, err := resolveNode(ctx, s.DB, nodeID)
	if err != nil {
		return lnclient.VerifyResult{}, err
	}

	res, err := s.LN.VerifyMessage(ctx, node.RPCServer, msg, sig)
	if err != nil {
		return lnclient.VerifyResult{}, fmt.Errorf("verify message on node %d: %w", node.ID, err)
	}
	return res, nil
}

// ListNodes returns all enabled nodes, best quality score first.
func (s *InvoiceService) ListNodes(ctx context.Context) ([]domain.Node, error) {
	return repo.ListEnabledNodes(ctx, s.DB)
}
