package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
)

func TestNodeSelection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	nodes := []domain.Node{
		{PubKey: "pk-low", Name: "low", RPCServer: "a:1", QOSScore: 1, Enabled: true},
		{PubKey: "pk-high", Name: "high", RPCServer: "b:1", QOSScore: 9, Enabled: true},
		{PubKey: "pk-off", Name: "off", RPCServer: "c:1", QOSScore: 99, Enabled: false},
	}
	for i := range nodes {
		if err := db.Create(&nodes[i]).Error; err != nil {
			t.Fatalf("seed node: %v", err)
		}
	}

	top, err := TopQOSNode(ctx, db)
	if err != nil {
		t.Fatalf("TopQOSNode: %v", err)
	}
	if top.PubKey != "pk-high" {
		t.Fatalf("top node = %s; disabled nodes must not win", top.PubKey)
	}

	enabled, err := ListEnabledNodes(ctx, db)
	if err != nil {
		t.Fatalf("ListEnabledNodes: %v", err)
	}
	if len(enabled) != 2 || enabled[0].PubKey != "pk-high" || enabled[1].PubKey != "pk-low" {
		t.Fatalf("unexpected listing: %+v", enabled)
	}
}

func TestNodeDisabledPersists(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n := &domain.Node{PubKey: "pk", Name: "n", RPCServer: "a:1", Enabled: false}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("create node: %v", err)
	}

	got, err := GetNode(ctx, db, n.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Enabled {
		t.Fatal("disabled node stored as enabled")
	}
}

func TestTopQOSNode_NoneEnabled(t *testing.T) {
	db := newTestDB(t)
	if _, err := TopQOSNode(context.Background(), db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceGlobalCheckpoint_NeverRegresses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	node := seedNode(t, db)

	if err := AdvanceGlobalCheckpoint(ctx, db, node.ID, 5); err != nil {
		t.Fatalf("advance to 5: %v", err)
	}
	got, _ := GetNode(ctx, db, node.ID)
	if got.GlobalCheckpoint != 5 {
		t.Fatalf("cursor = %d; want 5", got.GlobalCheckpoint)
	}

	// Smaller and equal values are ignored.
	if err := AdvanceGlobalCheckpoint(ctx, db, node.ID, 3); err != nil {
		t.Fatalf("advance to 3: %v", err)
	}
	if err := AdvanceGlobalCheckpoint(ctx, db, node.ID, 5); err != nil {
		t.Fatalf("advance to 5 again: %v", err)
	}
	got, _ = GetNode(ctx, db, node.ID)
	if got.GlobalCheckpoint != 5 {
		t.Fatalf("cursor regressed to %d", got.GlobalCheckpoint)
	}

	if err := AdvanceGlobalCheckpoint(ctx, db, node.ID, 8); err != nil {
		t.Fatalf("advance to 8: %v", err)
	}
	got, _ = GetNode(ctx, db, node.ID)
	if got.GlobalCheckpoint != 8 {
		t.Fatalf("cursor = %d; want 8", got.GlobalCheckpoint)
	}
}
