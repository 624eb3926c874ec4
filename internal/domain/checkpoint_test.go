package domain

import (
	"errors"
	"testing"
)

func TestIsTerminalCheckpoint(t *testing.T) {
	if IsTerminalCheckpoint(CheckpointNone) {
		t.Fatal("no_checkpoint must not be terminal")
	}
	if IsTerminalCheckpoint("") {
		t.Fatal("empty value must not be terminal")
	}
	for _, v := range []string{
		CheckpointDone,
		CheckpointCanceled,
		CheckpointExpired,
		CheckpointInconsistent,
		CheckpointDeserializeFailure,
		CheckpointMemoInvalid,
		CheckpointInvalidSignature,
		CheckpointInvalidPost,
		CheckpointInvalidParentPost,
		CheckpointInvalidAction,
		CheckpointBountyInvalid,
		CheckpointBountyInvalidPost,
		CheckpointSigMissing,
		CheckpointSigUnauthorized,
	} {
		if !IsTerminalCheckpoint(v) {
			t.Fatalf("%q must be terminal", v)
		}
	}
}

func TestCheckpointSpellings(t *testing.T) {
	// These exact strings are persisted; they must never be "fixed".
	if CheckpointSigUnauthorized != "signiture_unauthorized" {
		t.Fatalf("unexpected spelling: %q", CheckpointSigUnauthorized)
	}
	if ActionBounty != "bonty" {
		t.Fatalf("unexpected spelling: %q", ActionBounty)
	}
}

func TestAddIndexCheckpointName(t *testing.T) {
	got := AddIndexCheckpointName(3, 17)
	if got != "node-3-add-index-17" {
		t.Fatalf("AddIndexCheckpointName = %q", got)
	}
	if err := ValidateCheckpointName(got); err != nil {
		t.Fatalf("generated name failed validation: %v", err)
	}
}

func TestValidateCheckpointName(t *testing.T) {
	valid := []string{
		GlobalOffsetName,
		"node-1-add-index-1",
		"node-42-add-index-123456",
	}
	for _, name := range valid {
		if err := ValidateCheckpointName(name); err != nil {
			t.Fatalf("ValidateCheckpointName(%q) = %v; want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"global_offset",
		"node--add-index-1",
		"node-x-add-index-1",
		"node-1-add-index-",
		"node-1-add-index-1-extra",
		" node-1-add-index-1",
	}
	for _, name := range invalid {
		if err := ValidateCheckpointName(name); !errors.Is(err, ErrBadCheckpointName) {
			t.Fatalf("ValidateCheckpointName(%q) = %v; want ErrBadCheckpointName", name, err)
		}
	}
}
