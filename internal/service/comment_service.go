package service

import (
	"context"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"
)

type CommentService struct {
	store Store
	log   *observability.StructuredLogger
}

type AddCommentInput struct {
	UserID  string `validate:"required"`
	PostID  string `validate:"required"`
	Content string `validate:"required,max=10000"`
}

func NewCommentService(store Store) *CommentService {
	return &CommentService{
		store: store,
		log:   observability.NewStructuredLogger(),
	}
}

// AddComment attaches a comment by an existing user to an existing post.
func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (*models.Comment, error) {
	ctx, span := observability.GetTraceLayer().TraceAPIToServiceCall(ctx, "CommentService", "AddComment")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	s.log.LogServiceCall(ctx, "CommentService", "AddComment", map[string]interface{}{
		"user_id": in.UserID,
		"post_id": in.PostID,
	})
	if err = validateInput(in); err != nil {
		return nil, err
	}

	var comment *models.Comment
	err = s.store.Update(ctx, func(tx *repository.Tx) error {
		if _, ok := tx.User(in.UserID); !ok {
			return models.NewNotFoundError("User", in.UserID)
		}
		if _, ok := tx.Post(in.PostID); !ok {
			return models.NewNotFoundError("Post", in.PostID)
		}
		comment = tx.InsertComment(models.Comment{
			Content:  in.Content,
			AuthorID: in.UserID,
			PostID:   in.PostID,
		})
		return nil
	})
	if err != nil {
		s.log.LogServiceError(ctx, "CommentService", "AddComment", err)
		return nil, err
	}
	return comment, nil
}
