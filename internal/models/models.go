// Package models contains data structures for the application's domain models.
package models

import "strings"

// User is an account that can author posts and comments and react to posts.
type User struct {
	ID       string  `json:"id" yaml:"id"`
	Nickname string  `json:"nickname" yaml:"nickname"`
	Image    *string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Post is authored by a User. IDs are numeric strings assigned in creation order.
type Post struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
	AuthorID string `json:"authorId" yaml:"authorId"`
}

// Comment belongs to a Post and is written by a User.
type Comment struct {
	ID       string `json:"id" yaml:"id"`
	Content  string `json:"content" yaml:"content"`
	AuthorID string `json:"authorId" yaml:"authorId"`
	PostID   string `json:"postId" yaml:"postId"`
}

// Reaction is unique per (UserID, PostID, Type).
type Reaction struct {
	ID     string       `json:"id" yaml:"id"`
	Type   ReactionType `json:"type" yaml:"type"`
	UserID string       `json:"userId" yaml:"userId"`
	PostID string       `json:"postId" yaml:"postId"`
}

// PostPayload is the canonical event published when a post is created.
type PostPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
}

// Payload converts the post into its event form.
func (p *Post) Payload() PostPayload {
	return PostPayload{
		ID:       p.ID,
		Title:    p.Title,
		Content:  p.Content,
		AuthorID: p.AuthorID,
	}
}

// ReactionType enumerates the supported reactions.
type ReactionType string

const (
	ReactionLike    ReactionType = "LIKE"
	ReactionDislike ReactionType = "DISLIKE"
	ReactionLaugh   ReactionType = "LAUGH"
	ReactionSad     ReactionType = "SAD"
)

// ReactionTypes lists every valid reaction type.
var ReactionTypes = []ReactionType{ReactionLike, ReactionDislike, ReactionLaugh, ReactionSad}

// ParseReactionType validates a raw reaction type.
func ParseReactionType(raw string) (ReactionType, error) {
	t := ReactionType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, valid := range ReactionTypes {
		if t == valid {
			return t, nil
		}
	}
	return "", NewValidationError("Invalid reaction type " + raw)
}

// SortOrder orders post listings by numeric id.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ParseSortOrder defaults to DESC for an empty value.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", SortDesc:
		return SortDesc, nil
	case SortAsc:
		return SortAsc, nil
	default:
		return "", NewValidationError("Invalid sort order " + raw)
	}
}
