// Package services – Reconciler
//
// The reconciler is the settlement loop: every cycle it pages each enabled
// node's invoice stream from the node's global checkpoint, classifies each
// record with a pure transition function, runs the dispatcher on settled
// invoices, records terminal checkpoints write-once, and advances the
// per-node cursor only past a fully resolved prefix.
package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
)

// effect is the verdict of the transition function for one invoice record.
type effect int

const (
	// effectPending leaves the invoice untouched for the next cycle.
	effectPending effect = iota
	// effectWrite records the returned terminal checkpoint directly.
	effectWrite
	// effectDispatch hands the settled invoice to the action dispatcher.
	effectDispatch
	// effectBlock marks a local/node consistency mismatch: nothing is
	// written and the cursor does not move past this record.
	effectBlock
)

// transition classifies one node record against its local invoice. It is a
// pure function of its inputs so the state machine can be tested without a
// database or a node.
func transition(inv *domain.Invoice, rec lnclient.InvoiceRecord, now time.Time) (string, effect) {
	if inv.PayReq != "" && rec.PaymentRequest != "" && inv.PayReq != rec.PaymentRequest {
		return "", effectBlock
	}
	if rec.Memo != "" && inv.Request.Memo != "" && rec.Memo != inv.Request.Memo {
		return "", effectBlock
	}

	switch {
	case rec.State == lnclient.StateCanceled:
		return domain.CheckpointCanceled, effectWrite
	case rec.Settled || rec.State == lnclient.StateSettled:
		// A record claiming settlement must agree with itself: flag,
		// state, and settle time all say settled, or none do.
		if !rec.Settled || rec.State != lnclient.StateSettled || rec.SettleDate == 0 {
			return domain.CheckpointInconsistent, effectWrite
		}
		return "", effectDispatch
	}

	if rec.Expiry > 0 && rec.CreationDate > 0 {
		expiresAt := time.Unix(rec.CreationDate+rec.Expiry, 0)
		if now.After(expiresAt) {
			return domain.CheckpointExpired, effectWrite
		}
	}
	return "", effectPending
}

// Reconciler drives the settlement loop across all enabled nodes.
type Reconciler struct {
	DB         *gorm.DB
	LN         lnclient.Client
	Dispatcher *Dispatcher
	Codec      memo.Codec

	// PollInterval separates cycles in Run.
	PollInterval time.Duration
	// PageSize bounds one ListInvoices call.
	PageSize int
	// Retention is how long invoice requests are kept before the sweep
	// removes them; zero disables sweeping.
	Retention time.Duration

	// Now supplies timestamps; defaults to time.Now when nil.
	Now func() time.Time

	Log zerolog.Logger
}

// NewReconciler constructs a Reconciler with the given cadence.
func NewReconciler(db *gorm.DB, ln lnclient.Client, d *Dispatcher, codec memo.Codec, poll, retention time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		DB:           db,
		LN:           ln,
		Dispatcher:   d,
		Codec:        codec,
		PollInterval: poll,
		PageSize:     100,
		Retention:    retention,
		Now:          time.Now,
		Log:          log,
	}
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes cycles until ctx is canceled. Per-node failures are logged
// and retried next cycle; Run itself only returns on cancellation.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.Cycle(ctx); err != nil {
			r.Log.Error().Err(err).Msg("reconcile cycle failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cycle runs one full reconciliation pass: the retention sweep, then every
// enabled node. Sweeping first keeps expired requests from being resolved
// in the same pass that should have dropped them.
func (r *Reconciler) Cycle(ctx context.Context) error {
	if r.Retention > 0 {
		cutoff := r.now().UTC().Add(-r.Retention)
		swept, err := repo.SweepInvoiceRequests(ctx, r.DB, cutoff)
		if err != nil {
			r.Log.Error().Err(err).Msg("retention sweep failed")
		} else if swept > 0 {
			sweptRequests.Add(float64(swept))
			r.Log.Info().Int64("swept", swept).Msg("retention sweep")
		}
	}

	nodes, err := repo.ListEnabledNodes(ctx, r.DB)
	if err != nil {
		return err
	}
	for i := range nodes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.ProcessNode(ctx, &nodes[i]); err != nil {
			r.Log.Error().
				Uint("node_id", nodes[i].ID).
				Err(err).
				Msg("node reconcile failed")
		}
	}

	reconcileCycles.Inc()
	return nil
}

// ProcessNode pages one node's invoice stream from its global checkpoint,
// resolves what it can, and advances the cursor past the resolved prefix.
func (r *Reconciler) ProcessNode(ctx context.Context, node *domain.Node) error {
	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	list, err := r.LN.ListInvoices(ctx, node.RPCServer, node.GlobalCheckpoint, pageSize)
	if err != nil {
		return err
	}
	records := list.Invoices
	sort.Slice(records, func(i, j int) bool { return records[i].AddIndex < records[j].AddIndex })

	now := r.now()
	resolved := make(map[uint64]bool, len(records))

	for _, rec := range records {
		if rec.AddIndex <= node.GlobalCheckpoint {
			continue
		}
		ok, err := r.resolveRecord(ctx, node, rec, now)
		if err != nil {
			r.Log.Warn().
				Uint("node_id", node.ID).
				Uint64("add_index", rec.AddIndex).
				Err(err).
				Msg("record left pending")
			continue
		}
		resolved[rec.AddIndex] = ok
	}

	// The cursor advances one position at a time and stops at the first
	// gap or unresolved record, so nothing settled can be skipped.
	frontier := node.GlobalCheckpoint
	for {
		ok, seen := resolved[frontier+1]
		if !seen || !ok {
			break
		}
		frontier++
	}
	if frontier > node.GlobalCheckpoint {
		if err := repo.AdvanceGlobalCheckpoint(ctx, r.DB, node.ID, frontier); err != nil {
			return err
		}
		node.GlobalCheckpoint = frontier
		r.Log.Debug().
			Uint("node_id", node.ID).
			Str("cursor", domain.GlobalOffsetName).
			Uint64("add_index", frontier).
			Msg("cursor advanced")
	}
	nodeCheckpoint.WithLabelValues(strconv.FormatUint(uint64(node.ID), 10)).
		Set(float64(node.GlobalCheckpoint))
	return nil
}

// resolveRecord handles one node record: it reports whether the record is
// resolved for cursor-advance purposes. A returned error means a transient
// fault; the record stays pending.
func (r *Reconciler) resolveRecord(ctx context.Context, node *domain.Node, rec lnclient.InvoiceRecord, now time.Time) (bool, error) {
	inv, err := repo.GetInvoiceByAddIndex(ctx, r.DB, node.ID, rec.AddIndex)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return false, err
		}
		// A node invoice this service never issued. Canceled ones are
		// skipped; anything else keeps the cursor parked until an
		// operator intervenes.
		if rec.State == lnclient.StateCanceled {
			return true, nil
		}
		r.Log.Warn().
			Uint("node_id", node.ID).
			Uint64("add_index", rec.AddIndex).
			Str("state", rec.State).
			Msg("node invoice has no local counterpart")
		return false, nil
	}

	if domain.IsTerminalCheckpoint(inv.CheckpointValue) {
		return true, nil
	}

	state, eff := transition(inv, rec, now)
	switch eff {
	case effectPending:
		return false, nil

	case effectBlock:
		r.Log.Error().
			Uint("node_id", node.ID).
			Uint64("add_index", rec.AddIndex).
			Uint("invoice_id", inv.ID).
			Msg("local invoice disagrees with node record")
		return false, nil

	case effectWrite:
		return r.writeCheckpoint(ctx, node, inv, state, "", 0)

	case effectDispatch:
		return r.dispatchSettled(ctx, node, inv, rec)
	}
	return false, nil
}

// dispatchSettled decodes the settled invoice's memo and applies its
// action, then records the outcome.
func (r *Reconciler) dispatchSettled(ctx context.Context, node *domain.Node, inv *domain.Invoice, rec lnclient.InvoiceRecord) (bool, error) {
	encoded := rec.Memo
	if encoded == "" {
		encoded = inv.Request.Memo
	}

	m, err := r.Codec.Decode(encoded)
	if err != nil {
		return r.writeCheckpoint(ctx, node, inv, domain.CheckpointDeserializeFailure, "", 0)
	}
	m, err = memo.ValidateMemo(m, true)
	if err != nil {
		return r.writeCheckpoint(ctx, node, inv, domain.CheckpointMemoInvalid, "", 0)
	}
	p, err := memo.BindPayload(m)
	if err != nil {
		return r.writeCheckpoint(ctx, node, inv, domain.CheckpointMemoInvalid, "", 0)
	}

	out, err := r.Dispatcher.Apply(ctx, node, m, p)
	if err != nil {
		if errors.Is(err, ErrUnacceptUnsupported) {
			return r.writeCheckpoint(ctx, node, inv, domain.CheckpointInvalidAction, "", 0)
		}
		return false, err
	}
	return r.writeCheckpoint(ctx, node, inv, out.Checkpoint, out.ActionType, out.ActionID)
}

// writeCheckpoint performs the write-once terminal transition and keeps the
// transition metric. A raced write is fine: the invoice is terminal either
// way and counts as resolved.
func (r *Reconciler) writeCheckpoint(ctx context.Context, node *domain.Node, inv *domain.Invoice, state, actionType string, actionID int64) (bool, error) {
	applied, err := repo.SetInvoiceCheckpoint(ctx, r.DB, inv.ID, state, actionType, actionID)
	if err != nil {
		return false, err
	}
	if applied {
		invoiceTransitions.WithLabelValues(state).Inc()
		r.Log.Info().
			Uint("node_id", node.ID).
			Uint("invoice_id", inv.ID).
			Str("position", domain.AddIndexCheckpointName(node.ID, inv.AddIndex)).
			Str("checkpoint", state).
			Str("action_type", actionType).
			Msg("invoice resolved")
	}
	return true, nil
}
