package post

import (
	"context"
	"fmt"
	"strings"

	"inkwell/internal/common/pagination"
	"inkwell/internal/domain/entity"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/repository"
	"inkwell/pkg/clock"
)

// CreateInput represents the input parameters for creating a new post.
type CreateInput struct {
	AuthorID string
	Title    string
	Body     string
	Publish  bool
}

// Service provides post management use cases.
type Service struct {
	Repo  repository.PostRepository
	Clock clock.Clock
}

// List returns one page of posts plus pagination metadata.
func (s *Service) List(ctx context.Context, params pagination.Params) (pagination.Response[*entity.Post], error) {
	total, err := s.Repo.Count(ctx)
	if err != nil {
		return pagination.Response[*entity.Post]{}, fmt.Errorf("count posts: %w", err)
	}

	var posts []*entity.Post
	// 範囲外のページはDBに問い合わせない
	if int64(params.Offset()) < total {
		posts, err = s.Repo.List(ctx, params.Offset(), params.Limit)
		if err != nil {
			return pagination.Response[*entity.Post]{}, fmt.Errorf("list posts: %w", err)
		}
	}

	return pagination.NewResponse(posts, pagination.NewMetadata(total, params)), nil
}

// Get retrieves a single post by its ID.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Post, error) {
	if id <= 0 {
		return nil, ErrInvalidPostID
	}

	post, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Create validates and stores a new post. Published posts get their
// publication time from the service clock.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Post, error) {
	post := &entity.Post{
		AuthorID: strings.TrimSpace(in.AuthorID),
		Title:    strings.TrimSpace(in.Title),
		Body:     in.Body,
		Status:   entity.PostStatusDraft,
	}
	if in.Publish {
		post.Publish(clock.OrSystem(s.Clock).Now())
	}

	if err := post.Validate(); err != nil {
		metrics.RecordPostCreated(false)
		return nil, err
	}

	if err := s.Repo.Create(ctx, post); err != nil {
		metrics.RecordPostCreated(false)
		return nil, fmt.Errorf("create post: %w", err)
	}

	metrics.RecordPostCreated(true)
	return post, nil
}
