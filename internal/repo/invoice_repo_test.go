package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedNode(t *testing.T, db *gorm.DB) *domain.Node {
	t.Helper()
	n := &domain.Node{PubKey: uuid.NewString(), Name: "n", RPCServer: "localhost:10009", Enabled: true}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("seed node: %v", err)
	}
	return n
}

func TestGetOrCreateInvoiceRequest_Idempotent(t *testing.T) {
	db := newTestDB(t)
	node := seedNode(t, db)
	ctx := context.Background()

	first, err := GetOrCreateInvoiceRequest(ctx, db, node.ID, "lnboard_abc")
	if err != nil {
		t.Fatalf("first GetOrCreateInvoiceRequest: %v", err)
	}
	second, err := GetOrCreateInvoiceRequest(ctx, db, node.ID, "lnboard_abc")
	if err != nil {
		t.Fatalf("second GetOrCreateInvoiceRequest: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("request ids differ: %d vs %d", first.ID, second.ID)
	}

	// Same memo on a different node is a different request.
	other := seedNode(t, db)
	third, err := GetOrCreateInvoiceRequest(ctx, db, other.ID, "lnboard_abc")
	if err != nil {
		t.Fatalf("other-node GetOrCreateInvoiceRequest: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("requests on different nodes must not collide")
	}
}

func TestSetInvoiceCheckpoint_WriteOnce(t *testing.T) {
	db := newTestDB(t)
	node := seedNode(t, db)
	ctx := context.Background()

	req, _ := GetOrCreateInvoiceRequest(ctx, db, node.ID, "m")
	inv := &domain.Invoice{RequestID: req.ID, NodeID: node.ID, AddIndex: 1, RHash: "rh", PayReq: "pr"}
	if err := CreateInvoice(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.CheckpointValue != domain.CheckpointNone {
		t.Fatalf("fresh invoice checkpoint = %q", inv.CheckpointValue)
	}

	applied, err := SetInvoiceCheckpoint(ctx, db, inv.ID, domain.CheckpointDone, domain.ActionPost, 42)
	if err != nil {
		t.Fatalf("SetInvoiceCheckpoint: %v", err)
	}
	if !applied {
		t.Fatal("first transition not applied")
	}

	// A second transition must be a no-op, whatever value it carries.
	applied, err = SetInvoiceCheckpoint(ctx, db, inv.ID, domain.CheckpointCanceled, "", 0)
	if err != nil {
		t.Fatalf("SetInvoiceCheckpoint repeat: %v", err)
	}
	if applied {
		t.Fatal("terminal invoice transitioned again")
	}

	got, err := GetInvoiceByAddIndex(ctx, db, node.ID, 1)
	if err != nil {
		t.Fatalf("GetInvoiceByAddIndex: %v", err)
	}
	if got.CheckpointValue != domain.CheckpointDone || got.ActionType != domain.ActionPost || got.ActionID != 42 {
		t.Fatalf("checkpoint regressed: %+v", got)
	}
}

func TestGetInvoiceForMemo(t *testing.T) {
	db := newTestDB(t)
	node := seedNode(t, db)
	ctx := context.Background()

	req, _ := GetOrCreateInvoiceRequest(ctx, db, node.ID, "memo-a")
	inv := &domain.Invoice{RequestID: req.ID, NodeID: node.ID, AddIndex: 9, RHash: "rh", PayReq: "pr"}
	if err := CreateInvoice(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	got, err := GetInvoiceForMemo(ctx, db, node.ID, "memo-a")
	if err != nil {
		t.Fatalf("GetInvoiceForMemo: %v", err)
	}
	if got.ID != inv.ID {
		t.Fatalf("wrong invoice: %d vs %d", got.ID, inv.ID)
	}

	if _, err := GetInvoiceForMemo(ctx, db, node.ID, "memo-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing memo: %v; want ErrNotFound", err)
	}
}

func TestGetInvoiceByAddIndex_LoadsRequest(t *testing.T) {
	db := newTestDB(t)
	node := seedNode(t, db)
	ctx := context.Background()

	req, _ := GetOrCreateInvoiceRequest(ctx, db, node.ID, "the-memo")
	inv := &domain.Invoice{RequestID: req.ID, NodeID: node.ID, AddIndex: 4, RHash: "rh", PayReq: "pr"}
	if err := CreateInvoice(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	got, err := GetInvoiceByAddIndex(ctx, db, node.ID, 4)
	if err != nil {
		t.Fatalf("GetInvoiceByAddIndex: %v", err)
	}
	if got.Request.Memo != "the-memo" {
		t.Fatalf("request not preloaded: %+v", got.Request)
	}
}

func TestSweepInvoiceRequests(t *testing.T) {
	db := newTestDB(t)
	node := seedNode(t, db)
	ctx := context.Background()

	old, _ := GetOrCreateInvoiceRequest(ctx, db, node.ID, "old")
	db.Model(old).Update("created_at", time.Now().Add(-48*time.Hour))
	inv := &domain.Invoice{RequestID: old.ID, NodeID: node.ID, AddIndex: 1, RHash: "rh", PayReq: "pr"}
	if err := CreateInvoice(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	fresh, _ := GetOrCreateInvoiceRequest(ctx, db, node.ID, "fresh")

	swept, err := SweepInvoiceRequests(ctx, db, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("SweepInvoiceRequests: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d; want 1", swept)
	}

	if _, err := GetOrCreateInvoiceRequest(ctx, db, node.ID, "fresh"); err != nil {
		t.Fatalf("fresh request lost: %v", err)
	}
	var count int64
	db.Model(&domain.InvoiceRequest{}).Where("id = ?", old.ID).Count(&count)
	if count != 0 {
		t.Fatal("old request survived the sweep")
	}
	_ = fresh
}
