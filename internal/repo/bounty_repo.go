// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for bounties and
// bounty awards.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
)

// CreateBounty inserts a new active bounty on a question post.
func CreateBounty(ctx context.Context, db *gorm.DB, postID, amt int64, activation time.Time) (*domain.Bounty, error) {
	b := &domain.Bounty{
		PostID:         postID,
		Amt:            amt,
		IsActive:       true,
		ActivationTime: activation,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// EarliestActiveBounty returns the oldest still-active bounty on a
// question, or ErrNotFound.
func EarliestActiveBounty(ctx context.Context, db *gorm.DB, postID int64) (*domain.Bounty, error) {
	var b domain.Bounty
	err := db.WithContext(ctx).
		Where("post_id = ? AND is_active = ?", postID, true).
		Order("activation_time asc, id asc").
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SumOwedBounties sums amt over the question's bounties that are still
// active and unpaid. A zero sum means there is nothing left to pay out.
func SumOwedBounties(ctx context.Context, db *gorm.DB, postID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Bounty{}).
		Where("post_id = ? AND is_active = ? AND is_payed = ?", postID, true, false).
		Select("COALESCE(SUM(amt), 0)").
		Scan(&total).Error
	return total, err
}

// MarkBountiesPaid finalizes every active unpaid bounty on the question:
// is_payed set, is_active cleared. The WHERE clause re-checks the unpaid
// condition so a raced second caller affects zero rows.
func MarkBountiesPaid(ctx context.Context, db *gorm.DB, postID int64, awardTime time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Bounty{}).
		Where("post_id = ? AND is_active = ? AND is_payed = ?", postID, true, false).
		Updates(map[string]any{
			"is_payed":   true,
			"is_active":  false,
			"award_time": awardTime,
		})
	return res.RowsAffected, res.Error
}

// UpsertAward points the bounty's single award row at the winning answer,
// creating the row on first award. Repeated calls converging to the same
// answer are no-ops.
func UpsertAward(ctx context.Context, db *gorm.DB, bountyID uint, winningPostID int64) (*domain.BountyAward, error) {
	var award domain.BountyAward
	err := db.WithContext(ctx).
		Where("bounty_id = ?", bountyID).
		First(&award).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		award = domain.BountyAward{
			BountyID:  bountyID,
			PostID:    winningPostID,
			CreatedAt: time.Now().UTC(),
		}
		if err := db.WithContext(ctx).Create(&award).Error; err != nil {
			return nil, err
		}
		return &award, nil
	case err != nil:
		return nil, err
	}

	if award.PostID == winningPostID {
		return &award, nil
	}
	if err := db.WithContext(ctx).
		Model(&award).
		Update("post_id", winningPostID).Error; err != nil {
		return nil, err
	}
	award.PostID = winningPostID
	return &award, nil
}

// GetAward fetches a bounty award by ID, or ErrNotFound.
func GetAward(ctx context.Context, db *gorm.DB, id uint) (*domain.BountyAward, error) {
	var award domain.BountyAward
	if err := db.WithContext(ctx).First(&award, id).Error; err != nil {
		return nil, err
	}
	return &award, nil
}

// GetBounty fetches a bounty by ID, or ErrNotFound.
func GetBounty(ctx context.Context, db *gorm.DB, id uint) (*domain.Bounty, error) {
	var b domain.Bounty
	if err := db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}
