// Package services – Dispatcher
//
// This file implements the action dispatcher: the component that turns a
// decoded memo payload from a settled invoice into exactly one idempotent
// domain mutation. The dispatch key is the optional "action" field; its
// absence means "create a post".
//
// Apply returns an Outcome carrying the terminal checkpoint for the
// invoice. Transient faults (node RPC failures, unexpected DB errors) are
// returned as errors instead, leaving the invoice pending for the next
// reconciliation cycle.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/forum"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
)

// Outcome is the dispatcher's verdict on a settled invoice: the terminal
// checkpoint to record, and on success the action kind and id for audit.
type Outcome struct {
	Checkpoint string
	ActionType string
	ActionID   int64
}

// done builds the success outcome.
func done(actionType string, actionID int64) Outcome {
	return Outcome{Checkpoint: domain.CheckpointDone, ActionType: actionType, ActionID: actionID}
}

// terminal builds a failure outcome with no recorded action.
func terminal(checkpoint string) Outcome {
	return Outcome{Checkpoint: checkpoint}
}

// Dispatcher interprets decoded memo payloads and performs the
// corresponding domain mutation through the forum backend and the bounty
// store.
type Dispatcher struct {
	// DB is the GORM handle used for bounty persistence.
	DB *gorm.DB
	// Forum is the collaborator surface for posts, votes, and users.
	Forum forum.Backend
	// LN verifies detached signatures.
	LN lnclient.Client

	// ScoreDelta is the fixed score applied per paid vote to the post
	// author's reputation and the thread's aggregate score.
	ScoreDelta int64

	// Now supplies timestamps; defaults to time.Now when nil.
	Now func() time.Time

	Log zerolog.Logger
}

// NewDispatcher constructs a Dispatcher with the conventional one-point
// vote delta.
func NewDispatcher(db *gorm.DB, f forum.Backend, ln lnclient.Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{DB: db, Forum: f, LN: ln, ScoreDelta: 1, Now: time.Now, Log: log}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Apply performs the action encoded in the payload. raw is the validated
// memo mapping the payload was bound from; it is needed to rebuild the
// canonical signed form.
func (d *Dispatcher) Apply(ctx context.Context, node *domain.Node, raw map[string]any, p memo.Payload) (Outcome, error) {
	switch p.Action {
	case "":
		return d.createPost(ctx, node, raw, p)
	case memo.ActionKeyUpvote:
		return d.vote(ctx, node, raw, p, forum.VoteUpvote)
	case memo.ActionKeyAccept:
		return d.vote(ctx, node, raw, p, forum.VoteAccept)
	case memo.ActionKeyBounty:
		return d.bounty(ctx, p)
	default:
		d.Log.Warn().Str("action", p.Action).Msg("unknown memo action")
		return terminal(domain.CheckpointInvalidAction), nil
	}
}

// createPost handles the no-action-key payload: a new question, or a
// reply when parent_post_id is present.
func (d *Dispatcher) createPost(ctx context.Context, node *domain.Node, raw map[string]any, p memo.Payload) (Outcome, error) {
	author, outcome, err := d.resolveAuthor(ctx, node, raw, p)
	if err != nil {
		return Outcome{}, err
	}
	if outcome != nil {
		return *outcome, nil
	}

	np := forum.NewPost{
		Type:     p.PostType,
		Title:    p.Title,
		Content:  p.Content,
		TagVal:   p.TagVal,
		AuthorID: author.ID,
		Unixtime: p.Unixtime,
	}

	if p.IsReply() {
		parent, err := d.Forum.GetPost(ctx, p.ParentPostID)
		if err != nil {
			if errors.Is(err, forum.ErrNotFound) {
				return terminal(domain.CheckpointInvalidParentPost), nil
			}
			return Outcome{}, err
		}
		// Replies inherit the thread's title and tags.
		np.Type = forum.TypeAnswer
		np.ParentID = parent.ID
		np.Title = parent.Title
		np.TagVal = parent.TagVal
	} else if np.Title == "" {
		return terminal(domain.CheckpointMemoInvalid), nil
	}

	post, err := d.Forum.CreatePost(ctx, np)
	if err != nil {
		return Outcome{}, err
	}

	if post.Type == forum.TypeAnswer {
		if err := d.RecomputeAward(ctx, post.RootID); err != nil {
			// Recomputation is idempotent and re-runs on the next
			// answer or vote; the created post stands.
			d.Log.Error().Int64("question_id", post.RootID).Err(err).Msg("award recompute failed")
		}
	}

	return done(domain.ActionPost, post.ID), nil
}

// resolveAuthor verifies the optional detached signature and maps it to a
// user, falling back to the anonymous account. A non-nil Outcome means the
// signature was present but invalid.
func (d *Dispatcher) resolveAuthor(ctx context.Context, node *domain.Node, raw map[string]any, p memo.Payload) (*forum.User, *Outcome, error) {
	if !p.HasSignature() {
		u, err := d.Forum.GetOrCreateUser(ctx, forum.AnonymousPubKey)
		if err != nil {
			return nil, nil, err
		}
		return u, nil, nil
	}

	canonical, err := memo.CanonicalString(raw)
	if err != nil {
		return nil, nil, err
	}
	vr, err := d.LN.VerifyMessage(ctx, node.RPCServer, canonical, p.Sig)
	if err != nil {
		return nil, nil, err
	}
	if !vr.Valid {
		o := terminal(domain.CheckpointInvalidSignature)
		return nil, &o, nil
	}

	u, err := d.Forum.GetOrCreateUser(ctx, vr.Pubkey)
	if err != nil {
		return nil, nil, err
	}
	return u, nil, nil
}

// vote handles Upvote and Accept payloads.
func (d *Dispatcher) vote(ctx context.Context, node *domain.Node, raw map[string]any, p memo.Payload, kind string) (Outcome, error) {
	if p.PostID == 0 {
		return terminal(domain.CheckpointInvalidPost), nil
	}
	post, err := d.Forum.GetPost(ctx, p.PostID)
	if err != nil {
		if errors.Is(err, forum.ErrNotFound) {
			return terminal(domain.CheckpointInvalidPost), nil
		}
		return Outcome{}, err
	}

	delta := d.ScoreDelta
	if p.VoteVal < 0 {
		delta = -delta
	}

	actionType := domain.ActionUpvote
	if kind == forum.VoteAccept {
		actionType = domain.ActionAccept

		if delta < 0 {
			// Reversing an accept has no defined semantics.
			return Outcome{}, ErrUnacceptUnsupported
		}
		if !p.HasSignature() {
			return terminal(domain.CheckpointSigMissing), nil
		}

		canonical, err := memo.CanonicalString(raw)
		if err != nil {
			return Outcome{}, err
		}
		vr, err := d.LN.VerifyMessage(ctx, node.RPCServer, canonical, p.Sig)
		if err != nil {
			return Outcome{}, err
		}
		if !vr.Valid {
			return terminal(domain.CheckpointInvalidSignature), nil
		}

		// Only the question author may accept an answer.
		question, err := d.Forum.GetPost(ctx, post.RootID)
		if err != nil {
			if errors.Is(err, forum.ErrNotFound) {
				return terminal(domain.CheckpointInvalidPost), nil
			}
			return Outcome{}, err
		}
		qAuthor, err := d.Forum.GetUser(ctx, question.AuthorID)
		if err != nil {
			return Outcome{}, err
		}
		if vr.Pubkey != qAuthor.PubKey {
			return terminal(domain.CheckpointSigUnauthorized), nil
		}
	}

	if err := d.Forum.ApplyVote(ctx, post.ID, kind, delta); err != nil {
		return Outcome{}, err
	}

	if kind == forum.VoteUpvote && post.Type == forum.TypeAnswer {
		if err := d.RecomputeAward(ctx, post.RootID); err != nil {
			d.Log.Error().Int64("question_id", post.RootID).Err(err).Msg("award recompute failed")
		}
	}

	return done(actionType, post.ID), nil
}

// bounty handles the Bounty payload: a new active bounty on a question.
func (d *Dispatcher) bounty(ctx context.Context, p memo.Payload) (Outcome, error) {
	if p.PostID == 0 || p.Amt <= 0 {
		return terminal(domain.CheckpointBountyInvalid), nil
	}
	if _, err := d.Forum.GetPost(ctx, p.PostID); err != nil {
		if errors.Is(err, forum.ErrNotFound) {
			return terminal(domain.CheckpointBountyInvalidPost), nil
		}
		return Outcome{}, err
	}

	b, err := repo.CreateBounty(ctx, d.DB, p.PostID, p.Amt, d.now().UTC())
	if err != nil {
		return Outcome{}, err
	}
	return done(domain.ActionBounty, int64(b.ID)), nil
}

// RecomputeAward re-derives the winning answer for the earliest active
// bounty on a question: among answers created after the bounty activated,
// excluding the anonymous author, the highest vote count wins with ties
// broken by oldest creation time. The single award row is created or
// re-pointed; converging calls are no-ops.
func (d *Dispatcher) RecomputeAward(ctx context.Context, questionID int64) error {
	bounty, err := repo.EarliestActiveBounty(ctx, d.DB, questionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}

	answers, err := d.Forum.ListAnswers(ctx, questionID)
	if err != nil {
		return err
	}
	anon, err := d.Forum.GetOrCreateUser(ctx, forum.AnonymousPubKey)
	if err != nil {
		return err
	}

	var winner *forum.Post
	for i := range answers {
		a := &answers[i]
		if a.AuthorID == anon.ID {
			continue
		}
		if !a.CreatedAt.After(bounty.ActivationTime) {
			continue
		}
		// answers arrive oldest first, so a strict comparison keeps the
		// oldest answer on a tie.
		if winner == nil || a.VoteCount > winner.VoteCount {
			winner = a
		}
	}
	if winner == nil {
		return nil
	}

	_, err = repo.UpsertAward(ctx, d.DB, bounty.ID, winner.ID)
	return err
}
