package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSumOwedBounties_StacksAndExcludesPaid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := CreateBounty(ctx, db, 10, 100, now); err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}
	if _, err := CreateBounty(ctx, db, 10, 250, now); err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}
	if _, err := CreateBounty(ctx, db, 99, 500, now); err != nil {
		t.Fatalf("CreateBounty other question: %v", err)
	}

	owed, err := SumOwedBounties(ctx, db, 10)
	if err != nil {
		t.Fatalf("SumOwedBounties: %v", err)
	}
	if owed != 350 {
		t.Fatalf("owed = %d; want 350", owed)
	}

	// Questions without bounties owe zero.
	owed, err = SumOwedBounties(ctx, db, 77)
	if err != nil {
		t.Fatalf("SumOwedBounties empty: %v", err)
	}
	if owed != 0 {
		t.Fatalf("owed = %d; want 0", owed)
	}
}

func TestMarkBountiesPaid_SecondCallNoRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	CreateBounty(ctx, db, 10, 100, now)
	CreateBounty(ctx, db, 10, 250, now)

	n, err := MarkBountiesPaid(ctx, db, 10, now)
	if err != nil {
		t.Fatalf("MarkBountiesPaid: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked %d bounties; want 2", n)
	}

	owed, _ := SumOwedBounties(ctx, db, 10)
	if owed != 0 {
		t.Fatalf("owed after payout = %d; want 0", owed)
	}

	// A raced second payout finds nothing to mark.
	n, err = MarkBountiesPaid(ctx, db, 10, now)
	if err != nil {
		t.Fatalf("MarkBountiesPaid repeat: %v", err)
	}
	if n != 0 {
		t.Fatalf("repeat marked %d bounties; want 0", n)
	}
}

func TestEarliestActiveBounty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	late, _ := CreateBounty(ctx, db, 10, 100, base.Add(time.Hour))
	early, _ := CreateBounty(ctx, db, 10, 250, base)

	got, err := EarliestActiveBounty(ctx, db, 10)
	if err != nil {
		t.Fatalf("EarliestActiveBounty: %v", err)
	}
	if got.ID != early.ID {
		t.Fatalf("earliest bounty = %d; want %d", got.ID, early.ID)
	}

	// Once everything is paid there is no active bounty left.
	if _, err := MarkBountiesPaid(ctx, db, 10, base); err != nil {
		t.Fatalf("MarkBountiesPaid: %v", err)
	}
	if _, err := EarliestActiveBounty(ctx, db, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = late
}

func TestUpsertAward(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b, err := CreateBounty(ctx, db, 10, 100, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}

	first, err := UpsertAward(ctx, db, b.ID, 21)
	if err != nil {
		t.Fatalf("UpsertAward create: %v", err)
	}
	if first.PostID != 21 {
		t.Fatalf("award post = %d; want 21", first.PostID)
	}

	// Same winner is a no-op on the same row.
	same, err := UpsertAward(ctx, db, b.ID, 21)
	if err != nil {
		t.Fatalf("UpsertAward no-op: %v", err)
	}
	if same.ID != first.ID {
		t.Fatalf("award row duplicated: %d vs %d", same.ID, first.ID)
	}

	// A better answer repoints the existing row.
	moved, err := UpsertAward(ctx, db, b.ID, 34)
	if err != nil {
		t.Fatalf("UpsertAward repoint: %v", err)
	}
	if moved.ID != first.ID || moved.PostID != 34 {
		t.Fatalf("award not repointed: %+v", moved)
	}

	got, err := GetAward(ctx, db, first.ID)
	if err != nil {
		t.Fatalf("GetAward: %v", err)
	}
	if got.PostID != 34 {
		t.Fatalf("persisted award post = %d; want 34", got.PostID)
	}
}
