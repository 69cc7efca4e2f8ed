package repository

import (
	"context"

	"socialgraph/internal/models"
)

// Tx is exclusive access to the Store for the duration of Update.
// It must not be retained after the callback returns.
type Tx struct {
	s   *Store
	ctx context.Context
}

// User returns the user with id, if present.
func (tx *Tx) User(id string) (*models.User, bool) {
	u, ok := tx.s.usersByID[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// Post returns the post with id, if present.
func (tx *Tx) Post(id string) (*models.Post, bool) {
	p, ok := tx.s.postsByID[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// FindReaction returns the reaction for the (user, post, type) triple, if present.
func (tx *Tx) FindReaction(userID, postID string, kind models.ReactionType) (*models.Reaction, bool) {
	r, ok := tx.s.reactByK[reactionKey{userID, postID, kind}]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// InsertUser adds a user. An empty id is assigned from the user counter.
func (tx *Tx) InsertUser(u models.User) (*models.User, error) {
	s := tx.s
	if u.ID == "" {
		u.ID = s.allocate(&s.nextUserID)
	}
	if _, dup := s.usersByID[u.ID]; dup {
		return nil, models.NewValidationError("duplicate user id " + u.ID)
	}
	cp := u
	s.users = append(s.users, &cp)
	s.usersByID[cp.ID] = &cp
	s.nextUserID = bumpAbove(s.nextUserID, cp.ID)
	s.userLog.LogCreate(tx.ctx, map[string]interface{}{"id": cp.ID})
	out := cp
	return &out, nil
}

// InsertPost appends a post with the next post id.
func (tx *Tx) InsertPost(p models.Post) *models.Post {
	s := tx.s
	p.ID = s.allocate(&s.nextPostID)
	stored := s.appendPost(p)
	s.postLog.LogCreate(tx.ctx, map[string]interface{}{"id": stored.ID, "author_id": stored.AuthorID})
	out := *stored
	return &out
}

// InsertComment appends a comment with the next comment id.
func (tx *Tx) InsertComment(c models.Comment) *models.Comment {
	s := tx.s
	c.ID = s.allocate(&s.nextCommentID)
	cp := c
	s.comments = append(s.comments, &cp)
	s.commentLog.LogCreate(tx.ctx, map[string]interface{}{"id": cp.ID, "post_id": cp.PostID})
	out := cp
	return &out
}

// InsertReaction appends a reaction with the next reaction id. Callers enforce the
// (user, post, type) uniqueness invariant with FindReaction first.
func (tx *Tx) InsertReaction(r models.Reaction) *models.Reaction {
	s := tx.s
	r.ID = s.allocate(&s.nextReactionID)
	stored := s.appendReaction(r)
	s.reactionLog.LogCreate(tx.ctx, map[string]interface{}{"id": stored.ID, "post_id": stored.PostID, "type": string(stored.Type)})
	out := *stored
	return &out
}

// DeleteReaction removes the reaction with id and returns it.
func (tx *Tx) DeleteReaction(id string) (*models.Reaction, bool) {
	s := tx.s
	for i, r := range s.reactions {
		if r.ID != id {
			continue
		}
		s.reactions = append(s.reactions[:i], s.reactions[i+1:]...)
		delete(s.reactByK, reactionKey{r.UserID, r.PostID, r.Type})
		s.reactionLog.LogDelete(tx.ctx, map[string]interface{}{"id": r.ID, "post_id": r.PostID, "type": string(r.Type)})
		out := *r
		return &out, true
	}
	return nil, false
}
