// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Node
// model, including the per-node polling cursor.
//
// Error semantics:
//   - When a node is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetNode fetches a node by ID, or ErrNotFound.
func GetNode(ctx context.Context, db *gorm.DB, id uint) (*domain.Node, error) {
	var n domain.Node
	if err := db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListEnabledNodes returns all enabled nodes ordered by descending quality
// score, best node first.
func ListEnabledNodes(ctx context.Context, db *gorm.DB) ([]domain.Node, error) {
	var out []domain.Node
	err := db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("qos_score desc, id asc").
		Find(&out).Error
	return out, err
}

// TopQOSNode returns the enabled node with the highest quality score, or
// ErrNotFound when no node is enabled.
func TopQOSNode(ctx context.Context, db *gorm.DB) (*domain.Node, error) {
	var n domain.Node
	err := db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("qos_score desc, id asc").
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// AdvanceGlobalCheckpoint moves a node's polling cursor forward to value.
// The update is conditional on the stored cursor being smaller, so the
// cursor can never regress even if two writers race.
func AdvanceGlobalCheckpoint(ctx context.Context, db *gorm.DB, nodeID uint, value uint64) error {
	return db.WithContext(ctx).
		Model(&domain.Node{}).
		Where("id = ? AND global_checkpoint < ?", nodeID, value).
		Update("global_checkpoint", value).Error
}
