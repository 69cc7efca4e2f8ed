// Package loaders builds the per-request set of batch loaders used by the
// GraphQL relation resolvers.
package loaders

import (
	"context"
	"time"

	"socialgraph/internal/dataloader"
	"socialgraph/internal/models"
)

type ctxKey struct{}

// Source is the batch-read surface of the entity store.
type Source interface {
	UsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	PostsByAuthorIDs(ctx context.Context, authorIDs []string) ([][]*models.Post, error)
	CommentsByPostIDs(ctx context.Context, postIDs []string) ([][]*models.Comment, error)
	ReactionsByPostIDs(ctx context.Context, postIDs []string) ([][]*models.Reaction, error)
}

// Options configure the batching window shared by every loader of a set.
type Options struct {
	Wait     time.Duration
	MaxBatch int
}

// Loaders is one request's loader set. It must not outlive the request.
type Loaders struct {
	UserByID          *dataloader.Loader[string, *models.User]
	PostsByAuthorID   *dataloader.Loader[string, []*models.Post]
	CommentsByPostID  *dataloader.Loader[string, []*models.Comment]
	ReactionsByPostID *dataloader.Loader[string, []*models.Reaction]
}

// NewLoaders creates a fresh loader set over src.
func NewLoaders(src Source, opts Options) *Loaders {
	o := dataloader.Options{Wait: opts.Wait, MaxBatch: opts.MaxBatch}
	return &Loaders{
		UserByID:          dataloader.New("user_by_id", wrap("user_by_id", src.UsersByIDs), o),
		PostsByAuthorID:   dataloader.New("posts_by_author_id", wrap("posts_by_author_id", src.PostsByAuthorIDs), o),
		CommentsByPostID:  dataloader.New("comments_by_post_id", wrap("comments_by_post_id", src.CommentsByPostIDs), o),
		ReactionsByPostID: dataloader.New("reactions_by_post_id", wrap("reactions_by_post_id", src.ReactionsByPostIDs), o),
	}
}

// Flush dispatches every pending batch of the set.
func (l *Loaders) Flush() {
	l.UserByID.Flush()
	l.PostsByAuthorID.Flush()
	l.CommentsByPostID.Flush()
	l.ReactionsByPostID.Flush()
}

// WithLoaders attaches l to ctx.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// For returns the loader set attached to ctx, or nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(ctxKey{}).(*Loaders)
	return l
}

// wrap reports store failures to every waiter as a batch fetch failure.
func wrap[V any](relation string, fn dataloader.BatchFunc[string, V]) dataloader.BatchFunc[string, V] {
	return func(ctx context.Context, keys []string) ([]V, error) {
		values, err := fn(ctx, keys)
		if err != nil {
			if models.HasCode(err, models.CodeBatchFetchFailed) {
				return nil, err
			}
			return nil, models.NewBatchFetchError(relation, err)
		}
		return values, nil
	}
}
