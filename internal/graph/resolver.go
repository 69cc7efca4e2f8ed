package graph

import (
	"context"
	"encoding/json"
	"log/slog"

	"socialgraph/internal/auth"
	"socialgraph/internal/loaders"
	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
	"socialgraph/internal/service"

	graphql "github.com/graph-gophers/graphql-go"
)

// Subscriber is the local event fan-out.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) <-chan []byte
}

// Limiter throttles mutations per caller.
type Limiter interface {
	Allow(ctx context.Context, resource string) error
}

// Services groups the application services the resolvers call into.
type Services struct {
	Users     *service.UserService
	Posts     *service.PostService
	Comments  *service.CommentService
	Reactions *service.ReactionService
}

// Resolver is the root resolver for queries, mutations and subscriptions.
type Resolver struct {
	svc     Services
	rel     *relations
	events  Subscriber
	limiter Limiter
}

// --- Query ---

func (r *Resolver) User(ctx context.Context, args struct{ ID graphql.ID }) (*userResolver, error) {
	defer observability.TrackResolver("Query.user")()
	u, err := r.svc.Users.GetUser(ctx, string(args.ID))
	if err != nil || u == nil {
		return nil, err
	}
	if l := loaders.For(ctx); l != nil {
		l.UserByID.Prime(u.ID, u)
	}
	return &userResolver{u: u, rel: r.rel}, nil
}

type postsArgs struct {
	Order string
	First *int32
}

func (r *Resolver) Posts(ctx context.Context, args postsArgs) ([]*postResolver, error) {
	defer observability.TrackResolver("Query.posts")()
	order, err := models.ParseSortOrder(args.Order)
	if err != nil {
		return nil, err
	}
	in := service.ListPostsInput{Order: order}
	if args.First != nil {
		if *args.First < 0 {
			return nil, models.NewValidationError("first must not be negative")
		}
		in.First = int(*args.First)
	}
	posts, err := r.svc.Posts.ListPosts(ctx, in)
	if err != nil {
		return nil, err
	}
	return newPostResolvers(posts, r.rel), nil
}

func (r *Resolver) Viewer(ctx context.Context) (*userResolver, error) {
	defer observability.TrackResolver("Query.viewer")()
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, nil
	}
	return r.rel.user(ctx, id.UserID)
}

// --- Mutation ---

type createPostArgs struct {
	UserID  graphql.ID
	Title   string
	Content string
}

func (r *Resolver) CreatePost(ctx context.Context, args createPostArgs) (*postResolver, error) {
	defer observability.TrackResolver("Mutation.createPost")()
	if err := r.limiter.Allow(ctx, "createPost"); err != nil {
		return nil, err
	}
	post, err := r.svc.Posts.CreatePost(ctx, service.CreatePostInput{
		UserID:  string(args.UserID),
		Title:   args.Title,
		Content: args.Content,
	})
	if err != nil {
		return nil, err
	}
	if l := loaders.For(ctx); l != nil {
		l.PostsByAuthorID.Clear(post.AuthorID)
	}
	return &postResolver{p: post, rel: r.rel}, nil
}

type addCommentArgs struct {
	UserID  graphql.ID
	PostID  graphql.ID
	Content string
}

func (r *Resolver) AddComment(ctx context.Context, args addCommentArgs) (*commentResolver, error) {
	defer observability.TrackResolver("Mutation.addComment")()
	if err := r.limiter.Allow(ctx, "addComment"); err != nil {
		return nil, err
	}
	comment, err := r.svc.Comments.AddComment(ctx, service.AddCommentInput{
		UserID:  string(args.UserID),
		PostID:  string(args.PostID),
		Content: args.Content,
	})
	if err != nil {
		return nil, err
	}
	if l := loaders.For(ctx); l != nil {
		l.CommentsByPostID.Clear(comment.PostID)
	}
	return &commentResolver{c: comment, rel: r.rel}, nil
}

type addReactionArgs struct {
	UserID graphql.ID
	PostID graphql.ID
	Type   string
}

func (r *Resolver) AddReaction(ctx context.Context, args addReactionArgs) (*reactionResolver, error) {
	defer observability.TrackResolver("Mutation.addReaction")()
	if err := r.limiter.Allow(ctx, "addReaction"); err != nil {
		return nil, err
	}
	res, err := r.svc.Reactions.ToggleReaction(ctx, service.ToggleReactionInput{
		UserID: string(args.UserID),
		PostID: string(args.PostID),
		Type:   models.ReactionType(args.Type),
	})
	if err != nil {
		return nil, err
	}
	if l := loaders.For(ctx); l != nil {
		l.ReactionsByPostID.Clear(res.Reaction.PostID)
	}
	return &reactionResolver{r: res.Reaction, rel: r.rel}, nil
}

// --- Subscription ---

func (r *Resolver) PostCreated(ctx context.Context) <-chan *postPayloadResolver {
	events := r.events.Subscribe(ctx, notifications.TopicPostCreated)
	out := make(chan *postPayloadResolver)
	observability.ActiveSubscriptions.Inc()

	go func() {
		defer observability.ActiveSubscriptions.Dec()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				var payload models.PostPayload
				if err := json.Unmarshal(msg, &payload); err != nil {
					observability.GlobalLogger.WarnContext(ctx, "dropping malformed post event",
						slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- &postPayloadResolver{p: payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

type noLimit struct{}

func (noLimit) Allow(context.Context, string) error { return nil }
