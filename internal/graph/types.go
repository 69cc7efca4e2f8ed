package graph

import (
	"context"

	"socialgraph/internal/loaders"
	"socialgraph/internal/models"
	"socialgraph/internal/observability"

	graphql "github.com/graph-gophers/graphql-go"
)

// relations resolves association fields through the request's loader set.
type relations struct {
	source loaders.Source
	opts   loaders.Options
}

// loaderSet returns the loader set of the request. Outside a request (for
// instance while resolving a subscription event) a throwaway set is used.
func (r *relations) loaderSet(ctx context.Context) *loaders.Loaders {
	if l := loaders.For(ctx); l != nil {
		return l
	}
	return loaders.NewLoaders(r.source, r.opts)
}

func (r *relations) user(ctx context.Context, id string) (*userResolver, error) {
	u, err := r.loaderSet(ctx).UserByID.Load(ctx, id).Get(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return &userResolver{u: u, rel: r}, nil
}

type userResolver struct {
	u   *models.User
	rel *relations
}

func (r *userResolver) ID() graphql.ID  { return graphql.ID(r.u.ID) }
func (r *userResolver) Nickname() string { return r.u.Nickname }
func (r *userResolver) Image() *string   { return r.u.Image }

func (r *userResolver) Posts(ctx context.Context) ([]*postResolver, error) {
	defer observability.TrackResolver("User.posts")()
	posts, err := r.rel.loaderSet(ctx).PostsByAuthorID.Load(ctx, r.u.ID).Get(ctx)
	if err != nil {
		return nil, err
	}
	return newPostResolvers(posts, r.rel), nil
}

type postResolver struct {
	p   *models.Post
	rel *relations
}

func newPostResolvers(posts []*models.Post, rel *relations) []*postResolver {
	out := make([]*postResolver, len(posts))
	for i, p := range posts {
		out[i] = &postResolver{p: p, rel: rel}
	}
	return out
}

func (r *postResolver) ID() graphql.ID  { return graphql.ID(r.p.ID) }
func (r *postResolver) Title() string   { return r.p.Title }
func (r *postResolver) Content() string { return r.p.Content }

func (r *postResolver) Author(ctx context.Context) (*userResolver, error) {
	defer observability.TrackResolver("Post.author")()
	return r.rel.user(ctx, r.p.AuthorID)
}

func (r *postResolver) Comments(ctx context.Context) ([]*commentResolver, error) {
	defer observability.TrackResolver("Post.comments")()
	comments, err := r.rel.loaderSet(ctx).CommentsByPostID.Load(ctx, r.p.ID).Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*commentResolver, len(comments))
	for i, c := range comments {
		out[i] = &commentResolver{c: c, rel: r.rel}
	}
	return out, nil
}

func (r *postResolver) Reactions(ctx context.Context) ([]*reactionResolver, error) {
	defer observability.TrackResolver("Post.reactions")()
	reactions, err := r.rel.loaderSet(ctx).ReactionsByPostID.Load(ctx, r.p.ID).Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*reactionResolver, len(reactions))
	for i, re := range reactions {
		out[i] = &reactionResolver{r: re, rel: r.rel}
	}
	return out, nil
}

type commentResolver struct {
	c   *models.Comment
	rel *relations
}

func (r *commentResolver) ID() graphql.ID  { return graphql.ID(r.c.ID) }
func (r *commentResolver) Content() string { return r.c.Content }

func (r *commentResolver) Author(ctx context.Context) (*userResolver, error) {
	defer observability.TrackResolver("Comment.author")()
	return r.rel.user(ctx, r.c.AuthorID)
}

type reactionResolver struct {
	r   *models.Reaction
	rel *relations
}

func (r *reactionResolver) ID() graphql.ID { return graphql.ID(r.r.ID) }
func (r *reactionResolver) Type() string   { return string(r.r.Type) }

func (r *reactionResolver) User(ctx context.Context) (*userResolver, error) {
	defer observability.TrackResolver("Reaction.user")()
	return r.rel.user(ctx, r.r.UserID)
}

type postPayloadResolver struct {
	p models.PostPayload
}

func (r *postPayloadResolver) ID() graphql.ID       { return graphql.ID(r.p.ID) }
func (r *postPayloadResolver) Title() string        { return r.p.Title }
func (r *postPayloadResolver) Content() string      { return r.p.Content }
func (r *postPayloadResolver) AuthorID() graphql.ID { return graphql.ID(r.p.AuthorID) }
