package pathutil

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrInvalidID is returned for a missing, non-numeric or non-positive ID.
var ErrInvalidID = errors.New("invalid id")

// ParseID parses a positive int64 resource ID.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// PathID reads the {name} wildcard of the matched ServeMux pattern.
//
// Example:
//
//	// mux.Handle("GET /posts/{id}", h)
//	id, err := pathutil.PathID(r, "id")
func PathID(r *http.Request, name string) (int64, error) {
	return ParseID(r.PathValue(name))
}
