// Package seed provides the fixture data the store starts with: the built-in
// demo users and posts, an optional YAML fixtures file and optional fake
// content for local load testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"

	"gopkg.in/yaml.v3"
)

// Options configuration for the seeder
type Options struct {
	// File replaces the built-in fixtures when set.
	File string
	// FakeUsers adds that many generated users, each with a few posts.
	FakeUsers    int
	PostsPerUser int
	// RandSeed makes fake content reproducible when non-zero.
	RandSeed int64
}

func strPtr(s string) *string { return &s }

// Defaults returns the built-in demo fixtures.
func Defaults() repository.Fixtures {
	return repository.Fixtures{
		Users: []models.User{
			{ID: "1", Nickname: "Alice", Image: strPtr("img1.png")},
			{ID: "2", Nickname: "Bob", Image: strPtr("img2.png")},
		},
		Posts: []models.Post{
			{ID: "101", Title: "Post A", Content: "A content", AuthorID: "1"},
			{ID: "102", Title: "Post B", Content: "B content", AuthorID: "2"},
			{ID: "103", Title: "Post C", Content: "C content", AuthorID: "1"},
		},
	}
}

// LoadFile reads fixtures from a YAML document.
func LoadFile(path string) (repository.Fixtures, error) {
	var f repository.Fixtures
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	for i, r := range f.Reactions {
		kind, err := models.ParseReactionType(string(r.Type))
		if err != nil {
			return f, fmt.Errorf("fixtures %s: reaction %d: %w", path, i, err)
		}
		f.Reactions[i].Type = kind
	}
	return f, nil
}

// Run loads the fixtures selected by opts into store.
func Run(ctx context.Context, store *repository.Store, opts Options) error {
	fixtures := Defaults()
	if opts.File != "" {
		f, err := LoadFile(opts.File)
		if err != nil {
			return err
		}
		fixtures = f
	}
	if err := store.Load(ctx, fixtures); err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}

	if opts.FakeUsers > 0 {
		factory := NewFactory(store, opts.RandSeed)
		if _, err := factory.Populate(ctx, opts.FakeUsers, opts.PostsPerUser); err != nil {
			return fmt.Errorf("generate fake content: %w", err)
		}
	}

	stats := store.Stats()
	observability.GlobalLogger.InfoContext(ctx, "store seeded",
		slog.Int("users", stats.Users),
		slog.Int("posts", stats.Posts),
		slog.Int("comments", stats.Comments),
		slog.Int("reactions", stats.Reactions),
	)
	return nil
}
