package entity

import (
	"errors"
)

var (
	// ErrNotFound is wrapped by lookups that find no post.
	ErrNotFound = errors.New("not found")

	// ErrInvalid matches every *ValidationError under errors.Is.
	ErrInvalid = errors.New("invalid")
)

// ValidationError names the first field that failed validation, either on a
// post or on request parameters. Its message is shown to clients as is.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns "<field> <message>", e.g. "title is too long".
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
