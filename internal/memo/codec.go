// Package memo implements the compact action payload embedded in a
// lightning invoice description field.
//
// Wire format: "<prefix>_<base64(zlib(JSON))>". The prefix is a fixed,
// underscore-free friendly marker so a human scanning an invoice can tell
// the memo belongs to this site. The encoded form must fit the payment
// network's description-field limit with headroom; the title budget is
// carved out of the total so a memo and its title both fit.
package memo

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Prefix is the friendly marker prepended to every encoded memo. It must
// not contain an underscore, which is the prefix/body separator.
const Prefix = "lnboard"

// Default size budget. 639 bytes is the practical invoice description
// limit; the default leaves headroom below it.
const (
	DefaultMaxMemoBytes  = 600
	DefaultMaxTitleBytes = 120
)

// Decode errors, one per stage, so callers can classify the fault.
var (
	// ErrMemoTooLarge is returned by Encode when the encoded memo would
	// exceed the configured budget. Encoding never truncates.
	ErrMemoTooLarge = errors.New("encoded memo exceeds size limit")

	// ErrBadPrefix is returned when the memo does not start with Prefix.
	ErrBadPrefix = errors.New("memo does not carry the expected prefix")

	// ErrNotBase64 is returned when the memo body is not valid base64.
	ErrNotBase64 = errors.New("memo body is not base64")

	// ErrNotCompressed is returned when the base64 payload is not a valid
	// zlib stream.
	ErrNotCompressed = errors.New("memo body is not zlib-compressed")

	// ErrNotUTF8 is returned when the decompressed payload is not UTF-8.
	ErrNotUTF8 = errors.New("memo body is not valid UTF-8")

	// ErrNotJSON is returned when the decompressed payload is not a JSON
	// object.
	ErrNotJSON = errors.New("memo body is not a JSON object")
)

// Codec encodes and decodes memos under a configured size budget.
// The zero value is not usable; construct with NewCodec.
type Codec struct {
	// MaxMemoBytes bounds the full encoded memo (prefix included).
	MaxMemoBytes int
	// MaxTitleBytes is carved out of MaxMemoBytes so that a separately
	// rendered title always fits next to the memo.
	MaxTitleBytes int
}

// NewCodec returns a Codec with the default size budget.
func NewCodec() Codec {
	return Codec{MaxMemoBytes: DefaultMaxMemoBytes, MaxTitleBytes: DefaultMaxTitleBytes}
}

// Budget returns the effective encoded-size limit: the configured maximum
// with the title budget carved out.
func (c Codec) Budget() int {
	return c.MaxMemoBytes - c.MaxTitleBytes
}

// Encode serializes m to JSON, compresses it, base64-encodes it, and
// prepends the friendly prefix. It fails with ErrMemoTooLarge when the
// result would exceed the codec budget.
func (c Codec) Encode(m map[string]any) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("serialize memo: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compress memo: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress memo: %w", err)
	}

	encoded := Prefix + "_" + base64.StdEncoding.EncodeToString(buf.Bytes())
	if limit := c.Budget(); limit > 0 && len(encoded) > limit {
		return "", fmt.Errorf("%w: %d > %d", ErrMemoTooLarge, len(encoded), limit)
	}
	return encoded, nil
}

// Decode reverses Encode. Each stage fails with its own error value
// (ErrBadPrefix, ErrNotBase64, ErrNotCompressed, ErrNotUTF8, ErrNotJSON).
func (c Codec) Decode(encoded string) (map[string]any, error) {
	body, ok := strings.CutPrefix(encoded, Prefix+"_")
	if !ok {
		return nil, ErrBadPrefix
	}

	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotBase64, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCompressed, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCompressed, err)
	}
	_ = zr.Close()

	if !utf8.Valid(raw) {
		return nil, ErrNotUTF8
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return m, nil
}

// CanonicalString returns the canonical signable form of a memo mapping:
// JSON with the detached signature removed. encoding/json writes map keys
// in sorted order, which is what signers sign.
func CanonicalString(m map[string]any) (string, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if k == "sig" {
			continue
		}
		clean[k] = v
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("canonicalize memo: %w", err)
	}
	return string(raw), nil
}
