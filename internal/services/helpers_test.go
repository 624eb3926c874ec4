package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/forum"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := domainMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func domainMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Node{},
		&domain.InvoiceRequest{},
		&domain.Invoice{},
		&domain.Bounty{},
		&domain.BountyAward{},
	); err != nil {
		return err
	}
	return forum.AutoMigrate(db)
}

func seedNode(t *testing.T, db *gorm.DB, rpcserver string) *domain.Node {
	t.Helper()
	n := &domain.Node{
		PubKey:    uuid.NewString(),
		Name:      "test-node",
		RPCServer: rpcserver,
		QOSScore:  1,
		Enabled:   true,
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("seed node: %v", err)
	}
	return n
}

func encodeMemo(t *testing.T, m map[string]any) string {
	t.Helper()
	encoded, err := memo.NewCodec().Encode(m)
	if err != nil {
		t.Fatalf("encode memo: %v", err)
	}
	return encoded
}

// signer is a test identity: a secp256k1 key and its hex compressed pubkey.
type signer struct {
	priv   *btcec.PrivateKey
	pubkey string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return signer{priv: priv, pubkey: hex.EncodeToString(priv.PubKey().SerializeCompressed())}
}

// sign signs the canonical form of m and returns m with the signature set.
func (s signer) sign(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	canonical, err := memo.CanonicalString(m)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sig, err := lnclient.SignMessage(s.priv, canonical)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["sig"] = sig
	return out
}

func bind(t *testing.T, m map[string]any) memo.Payload {
	t.Helper()
	p, err := memo.BindPayload(m)
	if err != nil {
		t.Fatalf("bind payload: %v", err)
	}
	return p
}

func newTestDispatcher(t *testing.T, db *gorm.DB, ln lnclient.Client) (*Dispatcher, *forum.Store) {
	t.Helper()
	store := forum.NewStore(db)
	return NewDispatcher(db, store, ln, zerolog.Nop()), store
}

func mustUser(t *testing.T, store *forum.Store, pubkey string) *forum.User {
	t.Helper()
	u, err := store.GetOrCreateUser(context.Background(), pubkey)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	return u
}
