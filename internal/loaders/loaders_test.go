package loaders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource wraps the store and counts batch calls per relation.
type countingSource struct {
	*repository.Store
	mu    sync.Mutex
	calls map[string][][]string
	fail  error
}

func newCountingSource(t *testing.T) *countingSource {
	t.Helper()
	store := repository.NewStore(repository.Options{})
	require.NoError(t, store.Load(context.Background(), repository.Fixtures{
		Users: []models.User{{ID: "1", Nickname: "Alice"}, {ID: "2", Nickname: "Bob"}},
		Posts: []models.Post{
			{ID: "101", Title: "Post A", AuthorID: "1"},
			{ID: "102", Title: "Post B", AuthorID: "2"},
			{ID: "103", Title: "Post C", AuthorID: "1"},
		},
	}))
	return &countingSource{Store: store, calls: map[string][][]string{}}
}

func (c *countingSource) record(name string, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name] = append(c.calls[name], append([]string(nil), keys...))
	return c.fail
}

func (c *countingSource) UsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if err := c.record("users", ids); err != nil {
		return nil, err
	}
	return c.Store.UsersByIDs(ctx, ids)
}

func (c *countingSource) PostsByAuthorIDs(ctx context.Context, ids []string) ([][]*models.Post, error) {
	if err := c.record("posts", ids); err != nil {
		return nil, err
	}
	return c.Store.PostsByAuthorIDs(ctx, ids)
}

func (c *countingSource) callsFor(name string) [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

var manual = Options{Wait: time.Hour}

func TestLoaders_AuthorsOfSeveralPostsInOneBatch(t *testing.T) {
	t.Parallel()
	src := newCountingSource(t)
	l := NewLoaders(src, manual)
	ctx := WithLoaders(context.Background(), l)

	// Three posts, two distinct authors.
	var thunks []func() (*models.User, error)
	for _, authorID := range []string{"1", "2", "1"} {
		th := For(ctx).UserByID.Load(ctx, authorID)
		thunks = append(thunks, func() (*models.User, error) { return th.Get(ctx) })
	}
	l.Flush()

	names := []string{}
	for _, get := range thunks {
		u, err := get()
		require.NoError(t, err)
		names = append(names, u.Nickname)
	}
	assert.Equal(t, []string{"Alice", "Bob", "Alice"}, names)
	assert.Equal(t, [][]string{{"1", "2"}}, src.callsFor("users"))
}

func TestLoaders_MissingUserResolvesNil(t *testing.T) {
	t.Parallel()
	src := newCountingSource(t)
	l := NewLoaders(src, manual)
	ctx := context.Background()

	th := l.UserByID.Load(ctx, "404")
	l.Flush()
	u, err := th.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestLoaders_StoreFailureIsBatchFetchFailed(t *testing.T) {
	t.Parallel()
	src := newCountingSource(t)
	src.fail = errors.New("connection reset")
	l := NewLoaders(src, manual)
	ctx := context.Background()

	a := l.PostsByAuthorID.Load(ctx, "1")
	b := l.PostsByAuthorID.Load(ctx, "2")
	l.Flush()

	for _, th := range []interface {
		Get(context.Context) ([]*models.Post, error)
	}{a, b} {
		_, err := th.Get(ctx)
		require.Error(t, err)
		assert.True(t, models.HasCode(err, models.CodeBatchFetchFailed))
		assert.ErrorIs(t, err, src.fail)
	}
}

func TestLoaders_RequestsDoNotShareCaches(t *testing.T) {
	t.Parallel()
	src := newCountingSource(t)
	ctx := context.Background()

	first := NewLoaders(src, manual)
	th := first.UserByID.Load(ctx, "1")
	first.Flush()
	_, err := th.Get(ctx)
	require.NoError(t, err)

	second := NewLoaders(src, manual)
	th = second.UserByID.Load(ctx, "1")
	second.Flush()
	_, err = th.Get(ctx)
	require.NoError(t, err)

	assert.Len(t, src.callsFor("users"), 2)
	assert.NotSame(t, first.UserByID, second.UserByID)
}

func TestFor_WithoutLoadersReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, For(context.Background()))
}
