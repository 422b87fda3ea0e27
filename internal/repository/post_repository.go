package repository

import (
	"context"

	"inkwell/internal/domain/entity"
)

// PostRepository persists posts.
type PostRepository interface {
	// List returns posts ordered by created_at DESC, skipping offset rows.
	List(ctx context.Context, offset, limit int) ([]*entity.Post, error)
	// Count returns the total number of posts.
	Count(ctx context.Context) (int64, error)
	// Get returns (nil, nil) if the post does not exist.
	Get(ctx context.Context, id int64) (*entity.Post, error)
	// Create inserts post and fills in its ID and CreatedAt.
	Create(ctx context.Context, post *entity.Post) error
}
