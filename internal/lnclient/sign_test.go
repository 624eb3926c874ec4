package lnclient

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func TestSignMessage_RecoverRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	want := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	sig, err := SignMessage(priv, "hello lightning")
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	got, ok := RecoverPubkey("hello lightning", sig)
	if !ok {
		t.Fatal("RecoverPubkey failed on a valid signature")
	}
	if got != want {
		t.Fatalf("recovered pubkey %s; want %s", got, want)
	}
}

func TestRecoverPubkey_WrongMessage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	want := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	sig, err := SignMessage(priv, "original")
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	// Compact recovery over a different message either fails or recovers a
	// different key; it must never attribute the signature to the signer.
	got, ok := RecoverPubkey("tampered", sig)
	if ok && got == want {
		t.Fatal("tampered message still attributed to the signer")
	}
}

func TestRecoverPubkey_Garbage(t *testing.T) {
	if _, ok := RecoverPubkey("msg", "not-base64!!"); ok {
		t.Fatal("garbage signature recovered")
	}
	if _, ok := RecoverPubkey("msg", "aGVsbG8="); ok {
		t.Fatal("short signature recovered")
	}
}

func TestFakeClient_VerifyMessage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := SignMessage(priv, "claim")
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	f := NewFakeClient()
	res, err := f.VerifyMessage(context.Background(), "node", "claim", sig)
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if !res.Valid {
		t.Fatal("valid signature reported invalid")
	}
	if res.Pubkey != hex.EncodeToString(priv.PubKey().SerializeCompressed()) {
		t.Fatalf("wrong pubkey recovered: %s", res.Pubkey)
	}

	bad, err := f.VerifyMessage(context.Background(), "node", "claim", "garbage")
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if bad.Valid {
		t.Fatal("garbage signature reported valid")
	}
}
