package recognitions

import (
	"errors"
	"net/http"
)

// Domain errors for recognition operations.
var (
	ErrNotFound       = errors.New("recognition not found")
	ErrDuplicate      = errors.New("recognition already exists")
	ErrInvalidCommand = errors.New("invalid command")
	ErrFileTooLarge   = errors.New("file exceeds maximum upload size")
)

// MapHTTPStatus maps recognition domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidCommand):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
