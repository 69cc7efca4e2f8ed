package service

import (
	"context"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"
)

type PostService struct {
	store     Store
	publisher Publisher
	log       *observability.StructuredLogger
}

type CreatePostInput struct {
	UserID  string `validate:"required"`
	Title   string `validate:"required,max=300"`
	Content string `validate:"max=50000"`
}

type ListPostsInput struct {
	Order models.SortOrder
	First int
}

// NewPostService creates a PostService. publisher may be nil, in which case no
// events are emitted.
func NewPostService(store Store, publisher Publisher) *PostService {
	return &PostService{
		store:     store,
		publisher: publisher,
		log:       observability.NewStructuredLogger(),
	}
}

// CreatePost stores a new post for an existing user and announces it.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	ctx, span := observability.GetTraceLayer().TraceAPIToServiceCall(ctx, "PostService", "CreatePost")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	s.log.LogServiceCall(ctx, "PostService", "CreatePost", map[string]interface{}{"user_id": in.UserID})
	if err = validateInput(in); err != nil {
		return nil, err
	}

	var post *models.Post
	err = s.store.Update(ctx, func(tx *repository.Tx) error {
		if _, ok := tx.User(in.UserID); !ok {
			return models.NewNotFoundError("User", in.UserID)
		}
		post = tx.InsertPost(models.Post{
			Title:    in.Title,
			Content:  in.Content,
			AuthorID: in.UserID,
		})
		return nil
	})
	if err != nil {
		s.log.LogServiceError(ctx, "PostService", "CreatePost", err)
		return nil, err
	}

	if s.publisher != nil {
		if perr := s.publisher.PublishPostCreated(ctx, post.Payload()); perr != nil {
			// Delivery is best-effort; the post is already stored.
			s.log.LogServiceError(ctx, "PostService", "PublishPostCreated", perr)
		}
	}
	return post, nil
}

// ListPosts returns posts ordered by id, newest first unless Order is ASC.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	order := in.Order
	if order == "" {
		order = models.SortDesc
	}
	if order != models.SortAsc && order != models.SortDesc {
		return nil, models.NewValidationError("Invalid sort order " + string(order))
	}
	return s.store.ListPosts(ctx, order, in.First)
}
