// Package extapi holds the error contract shared by all provider adapters.
package extapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is a typed failure from a third-party API call. Adapters return it
// for any non-2xx provider response; callers decide whether it is
// user-visible. Calls are single-attempt — nothing in the adapters retries.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s api error: %d %s", e.Provider, e.StatusCode, e.Message)
}

// FromResponse builds an Error from a non-2xx response, capturing a bounded
// slice of the body for diagnostics.
func FromResponse(provider string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &Error{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
