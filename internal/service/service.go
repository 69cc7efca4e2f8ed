// Package service implements the application's mutations and top-level reads on
// top of the entity store.
package service

import (
	"context"
	"errors"
	"fmt"

	"socialgraph/internal/models"
	"socialgraph/internal/repository"

	"github.com/go-playground/validator/v10"
)

// Store is the part of the entity store used by services.
type Store interface {
	Update(ctx context.Context, fn func(tx *repository.Tx) error) error
	FindUser(ctx context.Context, id string) (*models.User, bool)
	ListPosts(ctx context.Context, order models.SortOrder, first int) ([]*models.Post, error)
}

// Publisher delivers post-created events to subscribers.
type Publisher interface {
	PublishPostCreated(ctx context.Context, payload models.PostPayload) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks struct tags and converts the first failure into a
// validation AppError.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return models.NewValidationError(fe.Field() + " is required")
	case "max":
		return models.NewValidationError(fmt.Sprintf("%s too long (max %s characters)", fe.Field(), fe.Param()))
	case "oneof":
		return models.NewValidationError(fmt.Sprintf("Invalid %s %v", fe.Field(), fe.Value()))
	default:
		return models.NewValidationError(fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
}
