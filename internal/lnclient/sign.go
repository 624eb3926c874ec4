package lnclient

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// signedMsgPrefix matches lnd's signmessage domain separation: the message
// is prefixed before hashing so an invoice or transaction can never be
// replayed as a signed message.
const signedMsgPrefix = "Lightning Signed Message:"

// messageDigest returns the double-SHA256 digest lnd signs.
func messageDigest(msg string) []byte {
	first := sha256.Sum256([]byte(signedMsgPrefix + msg))
	second := sha256.Sum256(first[:])
	return second[:]
}

// SignMessage produces a compact recoverable signature over msg with the
// given key, base64-encoded. FakeClient.VerifyMessage accepts its output;
// tests use it to play the role of a user signing via their node.
func SignMessage(priv *btcec.PrivateKey, msg string) (string, error) {
	sig, err := ecdsa.SignCompact(priv, messageDigest(msg), true)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// RecoverPubkey recovers the compressed signer pubkey (hex) from a compact
// signature produced by SignMessage. ok is false when the signature does
// not decode or does not recover.
func RecoverPubkey(msg, sig string) (pubkey string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	pub, _, err := ecdsa.RecoverCompact(raw, messageDigest(msg))
	if err != nil {
		return "", false
	}
	return hex.EncodeToString(pub.SerializeCompressed()), true
}
