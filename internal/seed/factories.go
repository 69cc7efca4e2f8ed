package seed

import (
	"context"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
)

const defaultPostsPerUser = 3

// Factory builds fake entities and inserts them through the store, so ids come
// from the store counters.
type Factory struct {
	store *repository.Store
	faker *gofakeit.Faker
}

// NewFactory creates a Factory. A zero seed uses the current time.
func NewFactory(store *repository.Store, seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{store: store, faker: gofakeit.New(seed)}
}

// BuildUser returns an unsaved user with generated fields.
func (f *Factory) BuildUser() models.User {
	avatar := "https://i.pravatar.cc/150?u=" + f.faker.UUID()
	return models.User{Nickname: f.faker.Username(), Image: &avatar}
}

// BuildPost returns an unsaved post by author.
func (f *Factory) BuildPost(authorID string) models.Post {
	return models.Post{
		Title:    f.faker.Sentence(5),
		Content:  f.faker.Paragraph(1, 3, 8, "\n"),
		AuthorID: authorID,
	}
}

// Summary counts what Populate inserted.
type Summary struct {
	Users    []string
	Posts    int
	Comments int
}

// Populate inserts users fake users with postsPerUser posts each. Every post gets
// a comment from the previous fake user.
func (f *Factory) Populate(ctx context.Context, users, postsPerUser int) (Summary, error) {
	if postsPerUser <= 0 {
		postsPerUser = defaultPostsPerUser
	}
	var sum Summary
	err := f.store.Update(ctx, func(tx *repository.Tx) error {
		for i := 0; i < users; i++ {
			u, err := tx.InsertUser(f.BuildUser())
			if err != nil {
				return err
			}
			sum.Users = append(sum.Users, u.ID)

			for j := 0; j < postsPerUser; j++ {
				p := tx.InsertPost(f.BuildPost(u.ID))
				sum.Posts++
				if i == 0 {
					continue
				}
				tx.InsertComment(models.Comment{
					Content:  f.faker.Sentence(8),
					AuthorID: sum.Users[i-1],
					PostID:   p.ID,
				})
				sum.Comments++
			}
		}
		return nil
	})
	return sum, err
}
