package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dailydrops/drops/internal/feed"
	"github.com/dailydrops/drops/internal/remote"
	"github.com/dailydrops/drops/internal/store"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// toAPIError maps domain errors onto HTTP statuses
func toAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var callErr *remote.CallError
	switch {
	case errors.Is(err, feed.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return NewError(http.StatusNotFound, "post not found")
	case errors.Is(err, store.ErrDuplicateLocalID):
		return NewError(http.StatusConflict, err.Error())
	case errors.Is(err, feed.ErrNotConfirmed), errors.Is(err, store.ErrInvalidTransition):
		return NewError(http.StatusConflict, err.Error())
	case errors.Is(err, feed.ErrAssetUpload):
		return NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrNoCredential):
		return NewError(http.StatusUnauthorized, err.Error())
	case errors.As(err, &callErr):
		return NewError(http.StatusBadGateway, callErr.Message)
	default:
		return NewError(http.StatusInternalServerError, err.Error())
	}
}
