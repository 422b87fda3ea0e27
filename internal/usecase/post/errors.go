// Package post provides use cases for listing, reading and publishing posts.
package post

import (
	"fmt"

	"inkwell/internal/domain/entity"
)

// Sentinel errors for post use case operations.
var (
	// ErrPostNotFound wraps entity.ErrNotFound so handlers answer 404.
	ErrPostNotFound = fmt.Errorf("post: %w", entity.ErrNotFound)

	// ErrInvalidPostID indicates a non-positive post ID.
	ErrInvalidPostID = &entity.ValidationError{Field: "id", Message: "must be a positive integer"}
)
