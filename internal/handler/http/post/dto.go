// Package post provides HTTP handlers for the post endpoints.
package post

import (
	"time"

	"inkwell/internal/domain/entity"
)

// DTO represents the JSON structure for post data transfer.
type DTO struct {
	ID          int64      `json:"id"`
	AuthorID    string     `json:"author_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toDTO(p *entity.Post) DTO {
	return DTO{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Title:       p.Title,
		Body:        p.Body,
		Status:      p.Status,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt,
	}
}

// CreateRequest is the body of POST /posts.
type CreateRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Publish bool   `json:"publish"`
}
