package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a storefront API failure decoded from an error response.
// Fields carries field-level validation errors when the API returns them.
type Error struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("storefront api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("storefront api: %d %s", e.Status, http.StatusText(e.Status))
}

// Unauthorized reports whether the failure was an authorization rejection.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Message == invalidTokenMessage
}

// NotFound reports whether the requested resource does not exist.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// FlatMessage joins message and field errors into one presentable string,
// the way the storefront surfaces them.
func (e *Error) FlatMessage() string {
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return e.Message
		}
		return "Something went wrong."
	}

	var parts []string
	for _, msgs := range e.Fields {
		parts = append(parts, msgs...)
	}
	return strings.Join(parts, " ")
}

// AsError unwraps an *Error from err when present.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
