package projections

import (
	"errors"
	"net/http"
)

// ErrNotFound is returned when no projection row exists for a recognition.
var ErrNotFound = errors.New("projection not found")

// MapHTTPStatus maps projection domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
