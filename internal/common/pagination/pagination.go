// Package pagination parses page/limit query parameters and builds the
// paginated response envelope used by list endpoints.
package pagination

import (
	"net/http"
	"strconv"

	"inkwell/internal/domain/entity"
	"inkwell/pkg/config"
)

// Config holds pagination configuration settings.
type Config struct {
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns page=1, limit=20, max=100.
func DefaultConfig() Config {
	return Config{
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// LoadFromEnv reads PAGINATION_DEFAULT_LIMIT and PAGINATION_MAX_LIMIT.
func LoadFromEnv() Config {
	cfg := DefaultConfig()
	cfg.DefaultLimit = config.GetEnvInt("PAGINATION_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.MaxLimit = config.GetEnvInt("PAGINATION_MAX_LIMIT", cfg.MaxLimit)
	if cfg.MaxLimit < 1 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	if cfg.DefaultLimit < 1 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(DefaultConfig().DefaultLimit, cfg.MaxLimit)
	}
	return cfg
}

// Params represents pagination query parameters from an HTTP request.
type Params struct {
	Page  int // 1-based
	Limit int
}

// Offset returns the SQL OFFSET for the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParseQueryParams reads page and limit from the query string. Missing values
// take the configured defaults; out-of-range values are a *entity.ValidationError.
func ParseQueryParams(r *http.Request, cfg Config) (Params, error) {
	params := Params{Page: cfg.DefaultPage, Limit: cfg.DefaultLimit}

	if s := r.URL.Query().Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return params, &entity.ValidationError{Field: "page", Message: "must be a positive integer"}
		}
		params.Page = page
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > cfg.MaxLimit {
			return params, &entity.ValidationError{
				Field:   "limit",
				Message: "must be between 1 and " + strconv.Itoa(cfg.MaxLimit),
			}
		}
		params.Limit = limit
	}

	return params, nil
}

// Metadata describes the page returned alongside the data.
type Metadata struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewMetadata computes TotalPages with ceiling division. There is always at
// least one page.
func NewMetadata(total int64, p Params) Metadata {
	pages := 1
	if total > 0 && p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Metadata{Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}

// Response is the JSON envelope for paginated lists.
type Response[T any] struct {
	Data       []T      `json:"data"`
	Pagination Metadata `json:"pagination"`
}

// NewResponse builds a Response. A nil slice is encoded as [].
func NewResponse[T any](data []T, meta Metadata) Response[T] {
	if data == nil {
		data = []T{}
	}
	return Response[T]{Data: data, Pagination: meta}
}
