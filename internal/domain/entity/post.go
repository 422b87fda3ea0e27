// Package entity defines the core domain entities and validation logic for the application.
package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Post statuses.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Field limits for posts.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 100_000
)

// Post is a piece of writing published by an author.
type Post struct {
	ID          int64
	AuthorID    string
	Title       string
	Body        string
	Status      string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// Validate checks the fields a new post must carry.
func (p *Post) Validate() error {
	if strings.TrimSpace(p.AuthorID) == "" {
		return &ValidationError{Field: "author_id", Message: "is required"}
	}
	if strings.TrimSpace(p.Title) == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Message: "is too long"}
	}
	if strings.TrimSpace(p.Body) == "" {
		return &ValidationError{Field: "body", Message: "is required"}
	}
	if utf8.RuneCountInString(p.Body) > MaxBodyLength {
		return &ValidationError{Field: "body", Message: "is too long"}
	}
	switch p.Status {
	case PostStatusDraft, PostStatusPublished:
	default:
		return &ValidationError{Field: "status", Message: "must be draft or published"}
	}
	return nil
}

// Publish marks the post as published at t. Publishing twice keeps the
// first timestamp.
func (p *Post) Publish(t time.Time) {
	p.Status = PostStatusPublished
	if p.PublishedAt == nil {
		p.PublishedAt = &t
	}
}
