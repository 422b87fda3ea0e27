package post

import (
	"log/slog"
	"net/http"

	"inkwell/internal/common/pagination"
	"inkwell/internal/handler/http/respond"
	"inkwell/internal/observability/logging"
	postUC "inkwell/internal/usecase/post"
)

type ListHandler struct {
	Svc           *postUC.Service
	PaginationCfg pagination.Config
}

// ServeHTTP 投稿一覧取得（ページネーション対応）
func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	params, err := pagination.ParseQueryParams(r, h.PaginationCfg)
	if err != nil {
		logger.Warn("invalid pagination parameters", slog.String("error", err.Error()))
		respond.FromError(w, err)
		return
	}

	result, err := h.Svc.List(ctx, params)
	if err != nil {
		logger.Error("failed to list posts",
			slog.String("error", respond.SanitizeError(err)),
			slog.Int("page", params.Page),
			slog.Int("limit", params.Limit))
		respond.FromError(w, err)
		return
	}

	dtos := make([]DTO, 0, len(result.Data))
	for _, p := range result.Data {
		dtos = append(dtos, toDTO(p))
	}
	respond.JSON(w, http.StatusOK, pagination.NewResponse(dtos, result.Pagination))
}
