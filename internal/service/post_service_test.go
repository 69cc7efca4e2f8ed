package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"socialgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostService_CreatePost_Validation(t *testing.T) {
	t.Parallel()

	svc := NewPostService(newStore(t), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{"missing title", CreatePostInput{UserID: "1", Content: "body"}},
		{"title too long", CreatePostInput{UserID: "1", Title: strings.Repeat("t", 301)}},
		{"content too long", CreatePostInput{UserID: "1", Title: "T", Content: strings.Repeat("c", 50001)}},
		{"missing user id", CreatePostInput{Title: "T"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreatePost(ctx, tt.in)
			assertValidationError(t, err)
		})
	}
}

func TestPostService_CreatePost_UnknownUser(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	pub := &publisherStub{}
	svc := NewPostService(store, pub)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: "999", Title: "T", Content: "C"})
	assertNotFoundError(t, err)
	assert.Equal(t, 3, store.Stats().Posts)
	assert.Empty(t, pub.published)
}

func TestPostService_CreatePost_Success(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	pub := &publisherStub{}
	svc := NewPostService(store, pub)

	post, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: "1", Title: "T", Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, "1000", post.ID)
	assert.Equal(t, "1", post.AuthorID)

	require.Len(t, pub.published, 1)
	assert.Equal(t, models.PostPayload{ID: "1000", Title: "T", Content: "C", AuthorID: "1"}, pub.published[0])

	listed, err := svc.ListPosts(context.Background(), ListPostsInput{First: 1})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "1000", listed[0].ID)
}

func TestPostService_CreatePost_PublishFailureKeepsPost(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	pub := &publisherStub{err: errors.New("redis down")}
	svc := NewPostService(store, pub)

	post, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: "2", Title: "T"})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, 4, store.Stats().Posts)
}

func TestPostService_ListPosts(t *testing.T) {
	t.Parallel()

	svc := NewPostService(newStore(t), nil)
	ctx := context.Background()

	postIDs := func(posts []*models.Post) []string {
		out := make([]string, len(posts))
		for i, p := range posts {
			out[i] = p.ID
		}
		return out
	}

	t.Run("default order is descending", func(t *testing.T) {
		t.Parallel()
		posts, err := svc.ListPosts(ctx, ListPostsInput{})
		require.NoError(t, err)
		assert.Equal(t, []string{"103", "102", "101"}, postIDs(posts))
	})

	t.Run("ascending", func(t *testing.T) {
		t.Parallel()
		posts, err := svc.ListPosts(ctx, ListPostsInput{Order: models.SortAsc})
		require.NoError(t, err)
		assert.Equal(t, []string{"101", "102", "103"}, postIDs(posts))
	})

	t.Run("first limits the result", func(t *testing.T) {
		t.Parallel()
		posts, err := svc.ListPosts(ctx, ListPostsInput{First: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"103"}, postIDs(posts))
	})

	t.Run("invalid order", func(t *testing.T) {
		t.Parallel()
		_, err := svc.ListPosts(ctx, ListPostsInput{Order: "SIDEWAYS"})
		assertValidationError(t, err)
	})
}

func TestUserService_GetUser(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newStore(t))
	ctx := context.Background()

	u, err := svc.GetUser(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Bob", u.Nickname)
	require.NotNil(t, u.Image)
	assert.Equal(t, "img2.png", *u.Image)

	missing, err := svc.GetUser(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
