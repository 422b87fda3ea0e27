package post

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"inkwell/internal/handler/http/middleware"
	"inkwell/internal/handler/http/respond"
	"inkwell/internal/observability/logging"
	postUC "inkwell/internal/usecase/post"
)

var errAuthRequired = errors.New("authentication required")

type CreateHandler struct{ Svc *postUC.Service }

// ServeHTTP 投稿作成
// The author is the authenticated user resolved by the identity middleware.
func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if id.UserID == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="inkwell"`)
		respond.Error(w, http.StatusUnauthorized, errAuthRequired)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	post, err := h.Svc.Create(r.Context(), postUC.CreateInput{
		AuthorID: id.UserID,
		Title:    req.Title,
		Body:     req.Body,
		Publish:  req.Publish,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}

	logging.FromContext(r.Context()).Info("post created",
		slog.String("event_type", "post_created"),
		slog.Int64("post_id", post.ID),
		slog.String("author_id", post.AuthorID),
		slog.String("status", post.Status))

	w.Header().Set("Location", "/posts/"+strconv.FormatInt(post.ID, 10))
	respond.JSON(w, http.StatusCreated, toDTO(post))
}
