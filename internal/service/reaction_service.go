package service

import (
	"context"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"
)

type ReactionService struct {
	store Store
	log   *observability.StructuredLogger
}

type ToggleReactionInput struct {
	UserID string `validate:"required"`
	PostID string `validate:"required"`
	Type   models.ReactionType
}

// ToggleResult is the outcome of a toggle. Reaction is the inserted record when
// Added, otherwise the record that was removed.
type ToggleResult struct {
	Reaction *models.Reaction
	Added    bool
}

func NewReactionService(store Store) *ReactionService {
	return &ReactionService{
		store: store,
		log:   observability.NewStructuredLogger(),
	}
}

// ToggleReaction flips the presence of the (user, post, type) reaction.
// Removing an existing reaction needs no existence checks; adding one requires
// both the user and the post to exist.
func (s *ReactionService) ToggleReaction(ctx context.Context, in ToggleReactionInput) (*ToggleResult, error) {
	ctx, span := observability.GetTraceLayer().TraceAPIToServiceCall(ctx, "ReactionService", "ToggleReaction")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	s.log.LogServiceCall(ctx, "ReactionService", "ToggleReaction", map[string]interface{}{
		"user_id": in.UserID,
		"post_id": in.PostID,
		"type":    string(in.Type),
	})
	if err = validateInput(in); err != nil {
		return nil, err
	}
	kind, err := models.ParseReactionType(string(in.Type))
	if err != nil {
		return nil, err
	}

	var result *ToggleResult
	err = s.store.Update(ctx, func(tx *repository.Tx) error {
		if existing, ok := tx.FindReaction(in.UserID, in.PostID, kind); ok {
			removed, _ := tx.DeleteReaction(existing.ID)
			result = &ToggleResult{Reaction: removed, Added: false}
			return nil
		}
		if _, ok := tx.User(in.UserID); !ok {
			return models.NewNotFoundError("User", in.UserID)
		}
		if _, ok := tx.Post(in.PostID); !ok {
			return models.NewNotFoundError("Post", in.PostID)
		}
		created := tx.InsertReaction(models.Reaction{
			Type:   kind,
			UserID: in.UserID,
			PostID: in.PostID,
		})
		result = &ToggleResult{Reaction: created, Added: true}
		return nil
	})
	if err != nil {
		s.log.LogServiceError(ctx, "ReactionService", "ToggleReaction", err)
		return nil, err
	}
	return result, nil
}
