package memo

import (
	"errors"
	"testing"
)

func TestValidateMemo_KeyCharset(t *testing.T) {
	good := map[string]any{"title": "t", "tag_val": "x", "post_type": float64(0)}
	if _, err := ValidateMemo(good, true); err != nil {
		t.Fatalf("valid keys rejected: %v", err)
	}

	for _, bad := range []map[string]any{
		{"Title": "t"},
		{"tag-val": "x"},
		{"amt2": float64(1)},
		{"": "x"},
	} {
		if _, err := ValidateMemo(bad, false); !errors.Is(err, ErrMemoInvalid) {
			t.Fatalf("expected ErrMemoInvalid for %v, got %v", bad, err)
		}
	}
}

func TestValidateMemo_SignableWhitespace(t *testing.T) {
	dirty := map[string]any{"title": "  padded  ", "content": "clean"}

	// Strict mode (settlement path): trimming would invalidate a signature.
	if _, err := ValidateMemo(dirty, true); !errors.Is(err, ErrMemoInvalid) {
		t.Fatalf("strict mode accepted dirty title: %v", err)
	}

	// Lax mode (encoding path): auto-trim.
	clean, err := ValidateMemo(dirty, false)
	if err != nil {
		t.Fatalf("lax mode rejected dirty title: %v", err)
	}
	if clean["title"] != "padded" {
		t.Fatalf("expected trimmed title, got %q", clean["title"])
	}
	// The input map must not be mutated.
	if dirty["title"] != "  padded  " {
		t.Fatalf("input map mutated: %q", dirty["title"])
	}
}

func TestValidateMemo_SignableMustBeString(t *testing.T) {
	if _, err := ValidateMemo(map[string]any{"sig": float64(42)}, false); !errors.Is(err, ErrMemoInvalid) {
		t.Fatalf("expected ErrMemoInvalid for numeric sig, got %v", err)
	}
}

func TestBindPayload_Defaults(t *testing.T) {
	p, err := BindPayload(map[string]any{
		"action":  ActionKeyUpvote,
		"post_id": float64(7),
	})
	if err != nil {
		t.Fatalf("BindPayload: %v", err)
	}
	if p.Action != ActionKeyUpvote || p.PostID != 7 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.VoteVal != 1 {
		t.Fatalf("vote_val should default to 1, got %d", p.VoteVal)
	}

	neg, err := BindPayload(map[string]any{"action": ActionKeyAccept, "post_id": float64(3), "vote_val": float64(-1)})
	if err != nil {
		t.Fatalf("BindPayload: %v", err)
	}
	if neg.VoteVal != -1 {
		t.Fatalf("negative vote_val lost: %d", neg.VoteVal)
	}
}

func TestPayload_Predicates(t *testing.T) {
	p := Payload{ParentPostID: 5, Sig: "s"}
	if !p.IsReply() || !p.HasSignature() {
		t.Fatalf("predicates wrong for %+v", p)
	}
	if (Payload{}).IsReply() || (Payload{}).HasSignature() {
		t.Fatal("zero payload should have no reply/signature")
	}
}
