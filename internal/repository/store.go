// Package repository holds the authoritative in-memory entity store.
//
// The Store is process-wide state: it is created once at startup, mutated only by
// the create and toggle operations (through Update), and lives until the process
// exits. Readers never observe partially applied mutations.
package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
)

// Default counter bases. Each kind draws ids from its own range; users come
// last so generated users never land in the post range.
const (
	DefaultPostIDBase     int64 = 1000
	DefaultCommentIDBase  int64 = 2000
	DefaultReactionIDBase int64 = 3000
	DefaultUserIDBase     int64 = 4000
)

// Options configure the id counters of a Store.
type Options struct {
	UserIDBase     int64
	PostIDBase     int64
	CommentIDBase  int64
	ReactionIDBase int64
}

func (o Options) withDefaults() Options {
	if o.UserIDBase <= 0 {
		o.UserIDBase = DefaultUserIDBase
	}
	if o.PostIDBase <= 0 {
		o.PostIDBase = DefaultPostIDBase
	}
	if o.CommentIDBase <= 0 {
		o.CommentIDBase = DefaultCommentIDBase
	}
	if o.ReactionIDBase <= 0 {
		o.ReactionIDBase = DefaultReactionIDBase
	}
	return o
}

// Fixtures is a snapshot of pre-existing entities loaded at startup.
type Fixtures struct {
	Users     []models.User     `yaml:"users"`
	Posts     []models.Post     `yaml:"posts"`
	Comments  []models.Comment  `yaml:"comments"`
	Reactions []models.Reaction `yaml:"reactions"`
}

// Stats reports collection sizes.
type Stats struct {
	Users     int `json:"users"`
	Posts     int `json:"posts"`
	Comments  int `json:"comments"`
	Reactions int `json:"reactions"`
}

type reactionKey struct {
	userID string
	postID string
	kind   models.ReactionType
}

// Store is the in-memory entity store.
type Store struct {
	mu sync.RWMutex

	users     []*models.User
	usersByID map[string]*models.User
	posts     []*models.Post
	postsByID map[string]*models.Post
	comments  []*models.Comment
	reactions []*models.Reaction
	reactByK  map[reactionKey]*models.Reaction

	nextUserID     int64
	nextPostID     int64
	nextCommentID  int64
	nextReactionID int64

	userLog     *observability.RepoLogger
	postLog     *observability.RepoLogger
	commentLog  *observability.RepoLogger
	reactionLog *observability.RepoLogger
}

// NewStore creates an empty store with the given counter bases.
func NewStore(opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		usersByID:      make(map[string]*models.User),
		postsByID:      make(map[string]*models.Post),
		reactByK:       make(map[reactionKey]*models.Reaction),
		nextUserID:     opts.UserIDBase,
		nextPostID:     opts.PostIDBase,
		nextCommentID:  opts.CommentIDBase,
		nextReactionID: opts.ReactionIDBase,
		userLog:        observability.NewRepoLogger("users"),
		postLog:        observability.NewRepoLogger("posts"),
		commentLog:     observability.NewRepoLogger("comments"),
		reactionLog:    observability.NewRepoLogger("reactions"),
	}
}

// Load inserts fixtures with their own ids and raises every counter above the
// largest numeric fixture id of its kind. References must resolve. The whole set
// is checked before anything is written, so a rejected load leaves the store as it was.
func (s *Store) Load(ctx context.Context, f Fixtures) error {
	return s.Update(ctx, func(tx *Tx) error {
		if err := s.checkFixtures(f); err != nil {
			return err
		}
		for i := range f.Users {
			if _, err := tx.InsertUser(f.Users[i]); err != nil {
				return err
			}
		}
		for _, p := range f.Posts {
			s.appendPost(p)
			s.nextPostID = bumpAbove(s.nextPostID, p.ID)
		}
		for _, c := range f.Comments {
			if c.ID == "" {
				c.ID = s.allocate(&s.nextCommentID)
			}
			cp := c
			s.comments = append(s.comments, &cp)
			s.nextCommentID = bumpAbove(s.nextCommentID, c.ID)
		}
		for _, r := range f.Reactions {
			if r.ID == "" {
				r.ID = s.allocate(&s.nextReactionID)
			}
			s.appendReaction(r)
			s.nextReactionID = bumpAbove(s.nextReactionID, r.ID)
		}
		return nil
	})
}

// checkFixtures validates f against the current contents. Must be called with s.mu held.
func (s *Store) checkFixtures(f Fixtures) error {
	users := make(map[string]bool, len(s.usersByID)+len(f.Users))
	for id := range s.usersByID {
		users[id] = true
	}
	next := s.nextUserID
	for _, u := range f.Users {
		id := u.ID
		if id == "" {
			id = strconv.FormatInt(next, 10)
			next++
		}
		if users[id] {
			return models.NewValidationError("duplicate user id " + id)
		}
		users[id] = true
		next = bumpAbove(next, id)
	}

	posts := make(map[string]bool, len(s.postsByID)+len(f.Posts))
	for id := range s.postsByID {
		posts[id] = true
	}
	for _, p := range f.Posts {
		if p.ID == "" {
			return models.NewValidationError("fixture post without id")
		}
		if posts[p.ID] {
			return models.NewValidationError("duplicate post id " + p.ID)
		}
		if !users[p.AuthorID] {
			return models.NewNotFoundError("User", p.AuthorID)
		}
		posts[p.ID] = true
	}

	for _, c := range f.Comments {
		if !users[c.AuthorID] {
			return models.NewNotFoundError("User", c.AuthorID)
		}
		if !posts[c.PostID] {
			return models.NewNotFoundError("Post", c.PostID)
		}
	}

	seen := make(map[reactionKey]bool, len(f.Reactions))
	for _, r := range f.Reactions {
		if !users[r.UserID] {
			return models.NewNotFoundError("User", r.UserID)
		}
		if !posts[r.PostID] {
			return models.NewNotFoundError("Post", r.PostID)
		}
		k := reactionKey{r.UserID, r.PostID, r.Type}
		if _, exists := s.reactByK[k]; exists || seen[k] {
			return models.NewValidationError(fmt.Sprintf("duplicate %s reaction by %s on %s", r.Type, r.UserID, r.PostID))
		}
		seen[k] = true
	}
	return nil
}

// Update runs fn with exclusive access to the store. Existence checks made through
// tx observe exactly the state the mutation is applied to.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s, ctx: ctx})
}

// FindUser looks a user up by id. A missing user is not an error.
func (s *Store) FindUser(ctx context.Context, id string) (*models.User, bool) {
	defer observability.TrackStoreOperation("find", "users")()
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.userLog.LogRead(ctx, map[string]interface{}{"id": id})
	u, ok := s.usersByID[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// FindPost looks a post up by id. A missing post is not an error.
func (s *Store) FindPost(ctx context.Context, id string) (*models.Post, bool) {
	defer observability.TrackStoreOperation("find", "posts")()
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.postLog.LogRead(ctx, map[string]interface{}{"id": id})
	p, ok := s.postsByID[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ListPosts returns posts sorted by numeric id. first <= 0 returns all of them.
func (s *Store) ListPosts(ctx context.Context, order models.SortOrder, first int) ([]*models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation("list", "posts")()
	s.mu.RLock()
	out := make([]*models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if order == models.SortAsc {
			return idLess(out[i].ID, out[j].ID)
		}
		return idLess(out[j].ID, out[i].ID)
	})
	if first > 0 && first < len(out) {
		out = out[:first]
	}
	return out, nil
}

// UsersByIDs returns one user (or nil) per id, positionally aligned.
func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "UsersByIDs", "users")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation("batch", "users")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, len(ids))
	for i, id := range ids {
		if u, ok := s.usersByID[id]; ok {
			cp := *u
			out[i] = &cp
		}
	}
	s.userLog.LogRead(ctx, map[string]interface{}{"ids": ids})
	return out, nil
}

// PostsByAuthorIDs returns, for each author id, the posts they wrote in creation order.
func (s *Store) PostsByAuthorIDs(ctx context.Context, authorIDs []string) ([][]*models.Post, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "PostsByAuthorIDs", "posts")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation("batch", "posts")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string][]*models.Post, len(authorIDs))
	for _, id := range authorIDs {
		groups[id] = []*models.Post{}
	}
	for _, p := range s.posts {
		if list, ok := groups[p.AuthorID]; ok {
			cp := *p
			groups[p.AuthorID] = append(list, &cp)
		}
	}
	out := make([][]*models.Post, len(authorIDs))
	for i, id := range authorIDs {
		out[i] = groups[id]
	}
	s.postLog.LogRead(ctx, map[string]interface{}{"author_ids": authorIDs})
	return out, nil
}

// CommentsByPostIDs returns, for each post id, its comments in creation order.
func (s *Store) CommentsByPostIDs(ctx context.Context, postIDs []string) ([][]*models.Comment, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "CommentsByPostIDs", "comments")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation("batch", "comments")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string][]*models.Comment, len(postIDs))
	for _, id := range postIDs {
		groups[id] = []*models.Comment{}
	}
	for _, c := range s.comments {
		if list, ok := groups[c.PostID]; ok {
			cp := *c
			groups[c.PostID] = append(list, &cp)
		}
	}
	out := make([][]*models.Comment, len(postIDs))
	for i, id := range postIDs {
		out[i] = groups[id]
	}
	s.commentLog.LogRead(ctx, map[string]interface{}{"post_ids": postIDs})
	return out, nil
}

// ReactionsByPostIDs returns, for each post id, its current reactions.
func (s *Store) ReactionsByPostIDs(ctx context.Context, postIDs []string) ([][]*models.Reaction, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "ReactionsByPostIDs", "reactions")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer observability.TrackStoreOperation("batch", "reactions")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string][]*models.Reaction, len(postIDs))
	for _, id := range postIDs {
		groups[id] = []*models.Reaction{}
	}
	for _, r := range s.reactions {
		if list, ok := groups[r.PostID]; ok {
			cp := *r
			groups[r.PostID] = append(list, &cp)
		}
	}
	out := make([][]*models.Reaction, len(postIDs))
	for i, id := range postIDs {
		out[i] = groups[id]
	}
	s.reactionLog.LogRead(ctx, map[string]interface{}{"post_ids": postIDs})
	return out, nil
}

// Stats returns the size of every collection.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Users:     len(s.users),
		Posts:     len(s.posts),
		Comments:  len(s.comments),
		Reactions: len(s.reactions),
	}
}

func (s *Store) allocate(counter *int64) string {
	id := strconv.FormatInt(*counter, 10)
	*counter++
	return id
}

func (s *Store) appendPost(p models.Post) *models.Post {
	cp := p
	s.posts = append(s.posts, &cp)
	s.postsByID[cp.ID] = &cp
	return &cp
}

func (s *Store) appendReaction(r models.Reaction) *models.Reaction {
	cp := r
	s.reactions = append(s.reactions, &cp)
	s.reactByK[reactionKey{cp.UserID, cp.PostID, cp.Type}] = &cp
	return &cp
}

// bumpAbove returns a counter value strictly greater than a numeric id.
func bumpAbove(next int64, id string) int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < next {
		return next
	}
	return n + 1
}

// idLess compares numeric ids numerically and falls back to string order.
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}
