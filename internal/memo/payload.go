package memo

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Action kinds carried in the optional "action" memo field. An absent
// action key means "create a post".
const (
	ActionKeyUpvote = "Upvote"
	ActionKeyAccept = "Accept"
	ActionKeyBounty = "Bounty"
)

// Payload is the typed view of a validated memo mapping.
//
// Which fields are meaningful depends on Action:
//   - "" (absent): Title/Content/TagVal/PostType describe a new post;
//     ParentPostID marks it as a reply; Sig optionally names the author.
//   - Upvote/Accept: PostID targets the voted post; VoteVal defaults to +1
//     and -1 requests clearing; Accept requires Sig.
//   - Bounty: PostID and Amt are required.
type Payload struct {
	Action       string `mapstructure:"action"`
	Title        string `mapstructure:"title"`
	Content      string `mapstructure:"content"`
	TagVal       string `mapstructure:"tag_val"`
	PostType     int    `mapstructure:"post_type"`
	PostID       int64  `mapstructure:"post_id"`
	ParentPostID int64  `mapstructure:"parent_post_id"`
	Amt          int64  `mapstructure:"amt"`
	VoteVal      int    `mapstructure:"vote_val"`
	Sig          string `mapstructure:"sig"`
	Unixtime     int64  `mapstructure:"unixtime"`
}

// BindPayload maps a validated memo mapping onto a Payload. Numeric JSON
// values arrive as float64, so decoding is weakly typed.
func BindPayload(m map[string]any) (Payload, error) {
	var p Payload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, fmt.Errorf("build payload decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMemoInvalid, err)
	}
	if p.VoteVal == 0 {
		p.VoteVal = 1
	}
	return p, nil
}

// HasSignature reports whether the payload carries a detached signature.
func (p Payload) HasSignature() bool { return p.Sig != "" }

// IsReply reports whether the payload describes a reply to another post.
func (p Payload) IsReply() bool { return p.ParentPostID != 0 }
