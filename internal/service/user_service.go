package service

import (
	"context"

	"socialgraph/internal/models"
)

type UserService struct {
	store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

// GetUser returns the user with id. An unknown id yields nil without error.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := s.store.FindUser(ctx, id)
	if !ok {
		return nil, nil
	}
	return u, nil
}
