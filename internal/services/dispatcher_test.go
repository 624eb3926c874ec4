package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lnboard/go-lnboard-backend/internal/domain"
	"github.com/lnboard/go-lnboard-backend/internal/forum"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
)

func TestDispatcher_CreatePost_Anonymous(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()

	raw := map[string]any{"title": "how do channels work", "content": "body"}
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone || out.ActionType != domain.ActionPost {
		t.Fatalf("outcome = %+v", out)
	}

	post, err := store.GetPost(ctx, out.ActionID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	anon := mustUser(t, store, forum.AnonymousPubKey)
	if post.AuthorID != anon.ID {
		t.Fatalf("author = %d; want anonymous %d", post.AuthorID, anon.ID)
	}
	if post.Title != "how do channels work" {
		t.Fatalf("title = %q", post.Title)
	}
}

func TestDispatcher_CreatePost_Signed(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()
	s := newSigner(t)

	raw := s.sign(t, map[string]any{"title": "t", "content": "c"})
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone {
		t.Fatalf("outcome = %+v", out)
	}

	post, _ := store.GetPost(ctx, out.ActionID)
	author, err := store.GetUser(ctx, post.AuthorID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if author.PubKey != s.pubkey {
		t.Fatalf("author pubkey = %s; want %s", author.PubKey, s.pubkey)
	}
}

func TestDispatcher_CreatePost_BadSignature(t *testing.T) {
	db := newTestDB(t)
	d, _ := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}

	raw := map[string]any{"title": "t", "content": "c", "sig": "not-a-signature"}
	out, err := d.Apply(context.Background(), node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointInvalidSignature {
		t.Fatalf("checkpoint = %q; want %q", out.Checkpoint, domain.CheckpointInvalidSignature)
	}
}

func TestDispatcher_Reply(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()

	u := mustUser(t, store, "pk-asker")
	q, err := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeQuestion, Title: "the question", TagVal: "routing", Content: "c", AuthorID: u.ID})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	raw := map[string]any{"content": "an answer", "parent_post_id": q.ID}
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone {
		t.Fatalf("outcome = %+v", out)
	}

	reply, _ := store.GetPost(ctx, out.ActionID)
	if reply.Type != forum.TypeAnswer || reply.ParentID != q.ID || reply.RootID != q.ID {
		t.Fatalf("reply misplaced: %+v", reply)
	}
	// Replies inherit the thread's title and tags.
	if reply.Title != "the question" || reply.TagVal != "routing" {
		t.Fatalf("reply did not inherit thread fields: %+v", reply)
	}
}

func TestDispatcher_Reply_MissingParent(t *testing.T) {
	db := newTestDB(t)
	d, _ := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}

	raw := map[string]any{"content": "orphan", "parent_post_id": 12345}
	out, err := d.Apply(context.Background(), node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointInvalidParentPost {
		t.Fatalf("checkpoint = %q", out.Checkpoint)
	}
}

func TestDispatcher_CreatePost_EmptyTitle(t *testing.T) {
	db := newTestDB(t)
	d, _ := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}

	raw := map[string]any{"content": "no title"}
	out, err := d.Apply(context.Background(), node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointMemoInvalid {
		t.Fatalf("checkpoint = %q", out.Checkpoint)
	}
}

func TestDispatcher_Upvote(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()

	u := mustUser(t, store, "pk")
	q, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeQuestion, Title: "q", Content: "c", AuthorID: u.ID})

	raw := map[string]any{"action": "Upvote", "post_id": q.ID}
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone || out.ActionType != domain.ActionUpvote {
		t.Fatalf("outcome = %+v", out)
	}

	got, _ := store.GetPost(ctx, q.ID)
	if got.VoteCount != 1 {
		t.Fatalf("vote_count = %d; want 1", got.VoteCount)
	}

	// Missing post and missing post_id are terminal, not errors.
	raw = map[string]any{"action": "Upvote", "post_id": 9999}
	out, _ = d.Apply(ctx, node, raw, bind(t, raw))
	if out.Checkpoint != domain.CheckpointInvalidPost {
		t.Fatalf("missing post checkpoint = %q", out.Checkpoint)
	}
	raw = map[string]any{"action": "Upvote"}
	out, _ = d.Apply(ctx, node, raw, bind(t, raw))
	if out.Checkpoint != domain.CheckpointInvalidPost {
		t.Fatalf("absent post_id checkpoint = %q", out.Checkpoint)
	}
}

func TestDispatcher_Accept(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()

	asker := newSigner(t)
	askerUser := mustUser(t, store, asker.pubkey)
	answerer := mustUser(t, store, "pk-answerer")

	q, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeQuestion, Title: "q", Content: "c", AuthorID: askerUser.ID})
	a, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeAnswer, ParentID: q.ID, Content: "a", AuthorID: answerer.ID})

	// Unsigned accept.
	raw := map[string]any{"action": "Accept", "post_id": a.ID}
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointSigMissing {
		t.Fatalf("unsigned accept checkpoint = %q", out.Checkpoint)
	}

	// Signed by someone other than the question author.
	stranger := newSigner(t)
	raw = stranger.sign(t, map[string]any{"action": "Accept", "post_id": a.ID})
	out, err = d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointSigUnauthorized {
		t.Fatalf("stranger accept checkpoint = %q", out.Checkpoint)
	}

	// Reversal is explicitly unsupported.
	raw = asker.sign(t, map[string]any{"action": "Accept", "post_id": a.ID, "vote_val": -1})
	_, err = d.Apply(ctx, node, raw, bind(t, raw))
	if !errors.Is(err, ErrUnacceptUnsupported) {
		t.Fatalf("unaccept error = %v", err)
	}

	// The question author accepts.
	raw = asker.sign(t, map[string]any{"action": "Accept", "post_id": a.ID})
	out, err = d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone || out.ActionType != domain.ActionAccept {
		t.Fatalf("outcome = %+v", out)
	}
	got, _ := store.GetPost(ctx, a.ID)
	if !got.Accepted {
		t.Fatal("answer not marked accepted")
	}
}

func TestDispatcher_Bounty(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}
	ctx := context.Background()

	u := mustUser(t, store, "pk")
	q, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeQuestion, Title: "q", Content: "c", AuthorID: u.ID})

	// Zero amount and missing post are terminal.
	raw := map[string]any{"action": "Bounty", "post_id": q.ID}
	out, _ := d.Apply(ctx, node, raw, bind(t, raw))
	if out.Checkpoint != domain.CheckpointBountyInvalid {
		t.Fatalf("zero-amt checkpoint = %q", out.Checkpoint)
	}
	raw = map[string]any{"action": "Bounty", "post_id": 9999, "amt": 100}
	out, _ = d.Apply(ctx, node, raw, bind(t, raw))
	if out.Checkpoint != domain.CheckpointBountyInvalidPost {
		t.Fatalf("missing-post checkpoint = %q", out.Checkpoint)
	}

	raw = map[string]any{"action": "Bounty", "post_id": q.ID, "amt": 100}
	out, err := d.Apply(ctx, node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointDone || out.ActionType != domain.ActionBounty {
		t.Fatalf("outcome = %+v", out)
	}

	b, err := repo.GetBounty(ctx, db, uint(out.ActionID))
	if err != nil {
		t.Fatalf("GetBounty: %v", err)
	}
	if b.PostID != q.ID || b.Amt != 100 || !b.IsActive {
		t.Fatalf("bounty = %+v", b)
	}
}

func TestDispatcher_UnknownAction(t *testing.T) {
	db := newTestDB(t)
	d, _ := newTestDispatcher(t, db, lnclient.NewFakeClient())
	node := &domain.Node{RPCServer: "fake"}

	raw := map[string]any{"action": "Downvote", "post_id": 1}
	out, err := d.Apply(context.Background(), node, raw, bind(t, raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Checkpoint != domain.CheckpointInvalidAction {
		t.Fatalf("checkpoint = %q", out.Checkpoint)
	}
}

func TestRecomputeAward(t *testing.T) {
	db := newTestDB(t)
	d, store := newTestDispatcher(t, db, lnclient.NewFakeClient())
	ctx := context.Background()

	asker := mustUser(t, store, "pk-asker")
	alice := mustUser(t, store, "pk-alice")
	bob := mustUser(t, store, "pk-bob")
	anon := mustUser(t, store, forum.AnonymousPubKey)

	base := time.Unix(1700000000, 0).UTC()
	q, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeQuestion, Title: "q", Content: "c", AuthorID: asker.ID, Unixtime: base.Unix()})

	bounty, err := repo.CreateBounty(ctx, db, q.ID, 500, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateBounty: %v", err)
	}

	// Before activation: not eligible even with votes.
	early, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeAnswer, ParentID: q.ID, Content: "early", AuthorID: alice.ID, Unixtime: base.Add(30 * time.Minute).Unix()})
	store.ApplyVote(ctx, early.ID, forum.VoteUpvote, 5)

	// Anonymous answers never win.
	anonA, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeAnswer, ParentID: q.ID, Content: "anon", AuthorID: anon.ID, Unixtime: base.Add(2 * time.Hour).Unix()})
	store.ApplyVote(ctx, anonA.ID, forum.VoteUpvote, 9)

	first, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeAnswer, ParentID: q.ID, Content: "a1", AuthorID: alice.ID, Unixtime: base.Add(3 * time.Hour).Unix()})
	second, _ := store.CreatePost(ctx, forum.NewPost{Type: forum.TypeAnswer, ParentID: q.ID, Content: "a2", AuthorID: bob.ID, Unixtime: base.Add(4 * time.Hour).Unix()})
	store.ApplyVote(ctx, first.ID, forum.VoteUpvote, 2)
	store.ApplyVote(ctx, second.ID, forum.VoteUpvote, 2)

	if err := d.RecomputeAward(ctx, q.ID); err != nil {
		t.Fatalf("RecomputeAward: %v", err)
	}

	award := findAward(t, d, bounty.ID)
	// Tie on votes keeps the oldest eligible answer.
	if award.PostID != first.ID {
		t.Fatalf("award post = %d; want oldest tied answer %d", award.PostID, first.ID)
	}

	// A new leader repoints the award.
	store.ApplyVote(ctx, second.ID, forum.VoteUpvote, 1)
	if err := d.RecomputeAward(ctx, q.ID); err != nil {
		t.Fatalf("RecomputeAward: %v", err)
	}
	award = findAward(t, d, bounty.ID)
	if award.PostID != second.ID {
		t.Fatalf("award post = %d; want new leader %d", award.PostID, second.ID)
	}

	// No active bounty is a quiet no-op.
	if err := d.RecomputeAward(ctx, 424242); err != nil {
		t.Fatalf("RecomputeAward without bounty: %v", err)
	}
}

func findAward(t *testing.T, d *Dispatcher, bountyID uint) *domain.BountyAward {
	t.Helper()
	var award domain.BountyAward
	if err := d.DB.Where("bounty_id = ?", bountyID).First(&award).Error; err != nil {
		t.Fatalf("load award: %v", err)
	}
	return &award
}
