package service

import (
	"context"
	"sync"
	"testing"

	"socialgraph/internal/models"
	"socialgraph/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publisherStub records published payloads.
type publisherStub struct {
	mu        sync.Mutex
	published []models.PostPayload
	err       error
}

func (p *publisherStub) PublishPostCreated(_ context.Context, payload models.PostPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, payload)
	return p.err
}

func img(s string) *string { return &s }

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	s := repository.NewStore(repository.Options{})
	require.NoError(t, s.Load(context.Background(), repository.Fixtures{
		Users: []models.User{
			{ID: "1", Nickname: "Alice", Image: img("img1.png")},
			{ID: "2", Nickname: "Bob", Image: img("img2.png")},
		},
		Posts: []models.Post{
			{ID: "101", Title: "Post A", Content: "A content", AuthorID: "1"},
			{ID: "102", Title: "Post B", Content: "B content", AuthorID: "2"},
			{ID: "103", Title: "Post C", Content: "C content", AuthorID: "1"},
		},
	}))
	return s
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation), "expected validation error, got %v", err)
}

func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeNotFound), "expected not found error, got %v", err)
}
