package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the GORM-backed reference implementation of Backend.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// AutoMigrate creates or updates the forum collaborator tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Post{}, &User{}, &Profile{}, &Vote{})
}

// GetPost looks up a post by id.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	if err := s.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost inserts a post, resolving RootID from the parent for replies.
func (s *Store) CreatePost(ctx context.Context, np NewPost) (*Post, error) {
	created := time.Now().UTC()
	if np.Unixtime > 0 {
		created = time.Unix(np.Unixtime, 0).UTC()
	}

	p := &Post{
		Type:      np.Type,
		ParentID:  np.ParentID,
		Title:     np.Title,
		Content:   np.Content,
		TagVal:    np.TagVal,
		AuthorID:  np.AuthorID,
		CreatedAt: created,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if np.ParentID != 0 {
			var parent Post
			if err := tx.First(&parent, np.ParentID).Error; err != nil {
				return err
			}
			p.RootID = parent.RootID
			if p.RootID == 0 {
				p.RootID = parent.ID
			}
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if p.RootID == 0 {
			// Questions root their own thread.
			p.RootID = p.ID
			return tx.Model(p).Update("root_id", p.ID).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListAnswers returns all answers under a question, oldest first.
func (s *Store) ListAnswers(ctx context.Context, questionID int64) ([]Post, error) {
	var out []Post
	err := s.DB.WithContext(ctx).
		Where("root_id = ? AND type = ?", questionID, TypeAnswer).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ApplyVote applies delta to the post, its thread, and its author, and
// records the vote. A negative delta clears the most recent matching vote
// instead of stacking a new row.
func (s *Store) ApplyVote(ctx context.Context, postID int64, kind string, delta int64) error {
	if kind != VoteUpvote && kind != VoteAccept {
		return fmt.Errorf("unknown vote kind %q", kind)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Post
		if err := tx.First(&p, postID).Error; err != nil {
			return err
		}

		if delta >= 0 {
			v := &Vote{PostID: postID, Kind: kind, Delta: delta, CreatedAt: time.Now().UTC()}
			if err := tx.Create(v).Error; err != nil {
				return err
			}
		} else {
			var v Vote
			err := tx.Where("post_id = ? AND kind = ?", postID, kind).
				Order("created_at desc, id desc").
				First(&v).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err == nil {
				if err := tx.Delete(&v).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Model(&Post{}).
			Where("id = ?", postID).
			Update("vote_count", gorm.Expr("vote_count + ?", delta)).Error; err != nil {
			return err
		}
		if p.RootID != 0 {
			if err := tx.Model(&Post{}).
				Where("id = ?", p.RootID).
				Update("thread_score", gorm.Expr("thread_score + ?", delta)).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&User{}).
			Where("id = ?", p.AuthorID).
			Update("reputation", gorm.Expr("reputation + ?", delta)).Error; err != nil {
			return err
		}

		if kind == VoteAccept && delta > 0 {
			if err := tx.Model(&Post{}).
				Where("id = ?", postID).
				Update("accepted", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOrCreateUser resolves a public key to a user. New users get a profile
// row as an explicit second step inside the same transaction.
func (s *Store) GetOrCreateUser(ctx context.Context, pubkey string) (*User, error) {
	var u User
	err := s.DB.WithContext(ctx).
		Where("pubkey = ?", pubkey).
		First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u = User{PubKey: pubkey, Name: shortName(pubkey), CreatedAt: time.Now().UTC()}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return tx.Create(&Profile{UserID: u.ID, CreatedAt: u.CreatedAt}).Error
	})
	if err != nil {
		// Lost a create race; the user exists now.
		var existing User
		if ferr := s.DB.WithContext(ctx).
			Where("pubkey = ?", pubkey).
			First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetUser looks up a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// shortName derives a display name from a pubkey.
func shortName(pubkey string) string {
	if len(pubkey) > 12 {
		return "ln-" + pubkey[:12]
	}
	return pubkey
}
