// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for invoice
// requests and invoices, including the write-once checkpoint transition
// and the retention sweep.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
)

// GetOrCreateInvoiceRequest returns the request for (nodeID, memo),
// creating it when absent. The unique index on (node_id, memo) makes the
// create race-safe: a concurrent insert surfaces as a duplicate error and
// the existing row is fetched instead.
func GetOrCreateInvoiceRequest(ctx context.Context, db *gorm.DB, nodeID uint, memo string) (*domain.InvoiceRequest, error) {
	var req domain.InvoiceRequest
	err := db.WithContext(ctx).
		Where("node_id = ? AND memo = ?", nodeID, memo).
		First(&req).Error
	if err == nil {
		return &req, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	req = domain.InvoiceRequest{NodeID: nodeID, Memo: memo, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(&req).Error; err != nil {
		// Lost a create race; the row exists now.
		var existing domain.InvoiceRequest
		if ferr := db.WithContext(ctx).
			Where("node_id = ? AND memo = ?", nodeID, memo).
			First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &req, nil
}

// CreateInvoice persists the node-issued invoice for a request.
func CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	if inv.CheckpointValue == "" {
		inv.CheckpointValue = domain.CheckpointNone
	}
	inv.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(inv).Error
}

// GetInvoiceByRequest fetches the invoice owned by a request, or
// ErrNotFound when the invoice row has not been created yet.
func GetInvoiceByRequest(ctx context.Context, db *gorm.DB, requestID uint) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoiceForMemo resolves (nodeID, memo) to its invoice through the
// owning request.
func GetInvoiceForMemo(ctx context.Context, db *gorm.DB, nodeID uint, memo string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Joins("JOIN invoice_requests ON invoice_requests.id = invoices.request_id").
		Where("invoice_requests.node_id = ? AND invoice_requests.memo = ?", nodeID, memo).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoiceByAddIndex fetches an invoice by its node-assigned sequence
// number within a node, with its owning request loaded so the caller can
// compare the stored memo against the node's record.
func GetInvoiceByAddIndex(ctx context.Context, db *gorm.DB, nodeID uint, addIndex uint64) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Preload("Request").
		Where("node_id = ? AND add_index = ?", nodeID, addIndex).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// SetInvoiceCheckpoint records a terminal checkpoint value on an invoice.
// The update is conditional on the stored value still being pending, which
// makes the transition write-once: re-applying any terminal value to an
// already-terminal invoice affects zero rows and returns applied=false.
func SetInvoiceCheckpoint(ctx context.Context, db *gorm.DB, invoiceID uint, value, actionType string, actionID int64) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND checkpoint_value = ?", invoiceID, domain.CheckpointNone).
		Updates(map[string]any{
			"checkpoint_value": value,
			"action_type":      actionType,
			"action_id":        actionID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SweepInvoiceRequests deletes invoice requests created before cutoff,
// regardless of invoice state. Owned invoices go with them through the
// cascading foreign key. Returns the number of requests removed.
func SweepInvoiceRequests(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.InvoiceRequest{})
	return res.RowsAffected, res.Error
}
