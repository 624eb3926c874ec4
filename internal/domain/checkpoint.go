// Checkpoint state set and checkpoint naming contract.
//
// Every invoice carries a checkpoint value from a closed set. The value
// starts at CheckpointNone and is written exactly once with a terminal
// state by the reconciler; re-processing a terminal invoice is a no-op.
//
// The persisted cursor key format is part of the wire contract:
// "global-offset" names the per-node polling cursor and
// "node-<n>-add-index-<i>" names a single invoice position. Any other
// representation is a local implementation detail.
package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// Checkpoint values an invoice can hold. CheckpointNone is the only
// non-terminal value; everything else is terminal and never regresses.
const (
	CheckpointNone = "no_checkpoint"

	CheckpointDone               = "done"
	CheckpointCanceled           = "canceled"
	CheckpointInconsistent       = "inconsistent"
	CheckpointExpired            = "expired"
	CheckpointDeserializeFailure = "deserialize_failure"
	CheckpointMemoInvalid        = "memo_invalid"
	CheckpointInvalidSignature   = "invalid_signature"
	CheckpointInvalidPost        = "invalid_post"
	CheckpointInvalidParentPost  = "invalid_parent_post"
	CheckpointInvalidAction      = "invalid_action"
	CheckpointBountyInvalid      = "bounty_invalid"
	CheckpointBountyInvalidPost  = "bounty_invalid_post_does_not_exist"
	CheckpointSigMissing         = "sig_missing"
	// Spelling is part of the persisted contract, kept as-is.
	CheckpointSigUnauthorized = "signiture_unauthorized"
)

// Action types recorded on a resolved invoice.
const (
	ActionPost   = "post"
	ActionUpvote = "upvote"
	ActionAccept = "accept"
	// Spelling is part of the persisted contract, kept as-is.
	ActionBounty = "bonty"
)

// GlobalOffsetName is the reserved checkpoint name for the per-node cursor.
const GlobalOffsetName = "global-offset"

// IsTerminalCheckpoint reports whether v is a terminal checkpoint value.
func IsTerminalCheckpoint(v string) bool {
	return v != "" && v != CheckpointNone
}

// AddIndexCheckpointName returns the checkpoint name for one invoice
// position on a node, e.g. "node-3-add-index-17".
func AddIndexCheckpointName(nodeID uint, addIndex uint64) string {
	return fmt.Sprintf("node-%d-add-index-%d", nodeID, addIndex)
}

// ErrBadCheckpointName is returned when a checkpoint name does not match
// the reserved formats.
var ErrBadCheckpointName = errors.New("invalid checkpoint name")

var addIndexNameRE = regexp.MustCompile(`^node-[0-9]+-add-index-[0-9]+$`)

// ValidateCheckpointName checks that name is one of the reserved formats:
// "global-offset" or "node-<digits>-add-index-<digits>".
func ValidateCheckpointName(name string) error {
	if name == GlobalOffsetName {
		return nil
	}
	if addIndexNameRE.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrBadCheckpointName, name)
}
