package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"socialgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func fixtureStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(Options{})
	require.NoError(t, s.Load(context.Background(), Fixtures{
		Users: []models.User{
			{ID: "1", Nickname: "Alice", Image: strPtr("img1.png")},
			{ID: "2", Nickname: "Bob", Image: strPtr("img2.png")},
		},
		Posts: []models.Post{
			{ID: "101", Title: "Post A", Content: "A content", AuthorID: "1"},
			{ID: "102", Title: "Post B", Content: "B content", AuthorID: "2"},
			{ID: "103", Title: "Post C", Content: "C content", AuthorID: "1"},
		},
	}))
	return s
}

func ids[T any](items []*T, id func(*T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func postID(p *models.Post) string { return p.ID }

func TestStore_FindByID(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	u, ok := s.FindUser(ctx, "1")
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Nickname)

	_, ok = s.FindUser(ctx, "404")
	assert.False(t, ok)

	p, ok := s.FindPost(ctx, "102")
	require.True(t, ok)
	assert.Equal(t, "2", p.AuthorID)
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	u, _ := s.FindUser(ctx, "1")
	u.Nickname = "Mallory"

	again, _ := s.FindUser(ctx, "1")
	assert.Equal(t, "Alice", again.Nickname)
}

func TestStore_ListPosts(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	asc, err := s.ListPosts(ctx, models.SortAsc, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, ids(asc, postID))

	desc, err := s.ListPosts(ctx, models.SortDesc, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"103", "102", "101"}, ids(desc, postID))

	first, err := s.ListPosts(ctx, models.SortDesc, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"103"}, ids(first, postID))

	firstAsc, err := s.ListPosts(ctx, models.SortAsc, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, ids(firstAsc, postID))
}

func TestStore_CountersStartAboveFixtures(t *testing.T) {
	t.Parallel()
	s := NewStore(Options{PostIDBase: 100})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, Fixtures{
		Users: []models.User{{ID: "1", Nickname: "Alice"}},
		Posts: []models.Post{{ID: "150", Title: "seeded", AuthorID: "1"}},
	}))

	var created *models.Post
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		created = tx.InsertPost(models.Post{Title: "T", Content: "C", AuthorID: "1"})
		return nil
	}))
	assert.Equal(t, "151", created.ID)

	var user *models.User
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		var err error
		user, err = tx.InsertUser(models.User{Nickname: "Carol"})
		return err
	}))
	assert.Equal(t, "4000", user.ID)
}

func TestStore_UserCounterHasItsOwnRange(t *testing.T) {
	t.Parallel()
	s := NewStore(Options{})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, Fixtures{
		Users: []models.User{{ID: "1", Nickname: "Alice"}, {ID: "4100", Nickname: "Seeded"}},
	}))

	var created []string
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		for i := 0; i < 1200; i++ {
			u, err := tx.InsertUser(models.User{Nickname: "fake"})
			if err != nil {
				return err
			}
			created = append(created, u.ID)
		}
		return nil
	}))
	assert.Equal(t, "4101", created[0])
	assert.Equal(t, "5300", created[len(created)-1])

	var post *models.Post
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		post = tx.InsertPost(models.Post{Title: "T", AuthorID: "1"})
		return nil
	}))
	assert.Equal(t, "1000", post.ID)
	_, clash := s.FindUser(ctx, post.ID)
	assert.False(t, clash)
}

func TestStore_DefaultCounterBases(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	var post *models.Post
	var comment *models.Comment
	var reaction *models.Reaction
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		post = tx.InsertPost(models.Post{Title: "T", AuthorID: "1"})
		comment = tx.InsertComment(models.Comment{Content: "c", AuthorID: "2", PostID: post.ID})
		reaction = tx.InsertReaction(models.Reaction{Type: models.ReactionLike, UserID: "2", PostID: post.ID})
		return nil
	}))
	assert.Equal(t, "1000", post.ID)
	assert.Equal(t, "2000", comment.ID)
	assert.Equal(t, "3000", reaction.ID)
}

func TestStore_LoadRejectsDanglingReferences(t *testing.T) {
	t.Parallel()
	s := NewStore(Options{})
	err := s.Load(context.Background(), Fixtures{
		Posts: []models.Post{{ID: "101", AuthorID: "ghost"}},
	})
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestStore_LoadRejectsDuplicateUsers(t *testing.T) {
	t.Parallel()
	s := NewStore(Options{})
	err := s.Load(context.Background(), Fixtures{
		Users: []models.User{{ID: "1"}, {ID: "1"}},
	})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestStore_RejectedLoadLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		fixtures Fixtures
		code     string
	}{
		{"dangling comment", Fixtures{
			Users:    []models.User{{ID: "9", Nickname: "New"}},
			Posts:    []models.Post{{ID: "500", Title: "P", AuthorID: "9"}},
			Comments: []models.Comment{{Content: "c", AuthorID: "9", PostID: "404"}},
		}, models.CodeNotFound},
		{"duplicate reaction", Fixtures{
			Posts: []models.Post{{ID: "501", Title: "P", AuthorID: "1"}},
			Reactions: []models.Reaction{
				{Type: models.ReactionLike, UserID: "1", PostID: "501"},
				{Type: models.ReactionLike, UserID: "1", PostID: "501"},
			},
		}, models.CodeValidation},
		{"post id already stored", Fixtures{
			Users: []models.User{{ID: "9", Nickname: "New"}},
			Posts: []models.Post{{ID: "101", Title: "P", AuthorID: "9"}},
		}, models.CodeValidation},
		{"generated user id clashes", Fixtures{
			Users: []models.User{{Nickname: "Gen"}, {ID: "4000", Nickname: "Explicit"}},
		}, models.CodeValidation},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := fixtureStore(t)
			ctx := context.Background()
			before := s.Stats()

			err := s.Load(ctx, tt.fixtures)
			require.Error(t, err)
			assert.True(t, models.HasCode(err, tt.code), err.Error())
			assert.Equal(t, before, s.Stats())
			_, ok := s.FindUser(ctx, "9")
			assert.False(t, ok)

			var post *models.Post
			require.NoError(t, s.Update(ctx, func(tx *Tx) error {
				post = tx.InsertPost(models.Post{Title: "T", AuthorID: "1"})
				return nil
			}))
			assert.Equal(t, "1000", post.ID)
		})
	}
}

func TestStore_BatchLookupsPreserveKeyPositions(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	users, err := s.UsersByIDs(ctx, []string{"2", "missing", "1"})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Bob", users[0].Nickname)
	assert.Nil(t, users[1])
	assert.Equal(t, "Alice", users[2].Nickname)

	posts, err := s.PostsByAuthorIDs(ctx, []string{"1", "nobody", "2"})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"101", "103"}, ids(posts[0], postID))
	assert.Empty(t, posts[1])
	assert.NotNil(t, posts[1])
	assert.Equal(t, []string{"102"}, ids(posts[2], postID))
}

func TestStore_CommentsAndReactionsByPostIDs(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		tx.InsertComment(models.Comment{Content: "first", AuthorID: "1", PostID: "102"})
		tx.InsertComment(models.Comment{Content: "second", AuthorID: "2", PostID: "102"})
		tx.InsertReaction(models.Reaction{Type: models.ReactionLaugh, UserID: "1", PostID: "101"})
		return nil
	}))

	comments, err := s.CommentsByPostIDs(ctx, []string{"101", "102"})
	require.NoError(t, err)
	assert.Empty(t, comments[0])
	require.Len(t, comments[1], 2)
	assert.Equal(t, "first", comments[1][0].Content)
	assert.Equal(t, "second", comments[1][1].Content)

	reactions, err := s.ReactionsByPostIDs(ctx, []string{"101", "102"})
	require.NoError(t, err)
	require.Len(t, reactions[0], 1)
	assert.Equal(t, models.ReactionLaugh, reactions[0][0].Type)
	assert.Empty(t, reactions[1])
}

func TestStore_BatchLookupHonoursCancellation(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.UsersByIDs(ctx, []string{"1"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStore_DeleteReaction(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	var inserted *models.Reaction
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		inserted = tx.InsertReaction(models.Reaction{Type: models.ReactionSad, UserID: "1", PostID: "103"})
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		found, ok := tx.FindReaction("1", "103", models.ReactionSad)
		require.True(t, ok)
		removed, ok := tx.DeleteReaction(found.ID)
		require.True(t, ok)
		assert.Equal(t, inserted, removed)
		_, ok = tx.FindReaction("1", "103", models.ReactionSad)
		assert.False(t, ok)
		return nil
	}))
	assert.Equal(t, 0, s.Stats().Reactions)
}

func TestStore_ConcurrentInsertsGetUniqueIDs(t *testing.T) {
	t.Parallel()
	s := fixtureStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	idsCh := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(tx *Tx) error {
				idsCh <- tx.InsertPost(models.Post{Title: "x", AuthorID: "1"}).ID
				return nil
			})
		}()
	}
	wg.Wait()
	close(idsCh)

	seen := map[string]bool{}
	for id := range idsCh {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 3+n, s.Stats().Posts)
}
