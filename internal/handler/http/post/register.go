package post

import (
	"net/http"

	"inkwell/internal/common/pagination"
	"inkwell/internal/handler/http/middleware"
	postUC "inkwell/internal/usecase/post"
	"inkwell/pkg/ratelimit"
)

// Register registers the post routes. Reads run under the api policy and
// creation under content_create. A nil rl mounts the routes unlimited.
func Register(mux *http.ServeMux, svc *postUC.Service, rl *middleware.RateLimiter, paginationCfg pagination.Config) {
	limit := func(policy string, h http.Handler) http.Handler {
		if rl == nil {
			return h
		}
		return rl.Limit(policy)(h)
	}

	mux.Handle("GET /posts", limit(ratelimit.PolicyAPI, ListHandler{Svc: svc, PaginationCfg: paginationCfg}))
	mux.Handle("GET /posts/{id}", limit(ratelimit.PolicyAPI, GetHandler{Svc: svc}))
	mux.Handle("POST /posts", limit(ratelimit.PolicyContentCreate, CreateHandler{Svc: svc}))
}
