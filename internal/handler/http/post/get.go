package post

import (
	"net/http"

	"inkwell/internal/handler/http/pathutil"
	"inkwell/internal/handler/http/respond"
	postUC "inkwell/internal/usecase/post"
)

type GetHandler struct{ Svc *postUC.Service }

// ServeHTTP 投稿詳細取得
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.PathID(r, "id")
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	post, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(post))
}
