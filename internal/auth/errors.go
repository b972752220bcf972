package auth

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/tdx/internal/shared"
)

// maxErrorBody bounds how much of a failed response body is kept for error messages.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response surfaced to the caller.
//
// It unwraps to [shared.ErrAuth] for 401/403 and [shared.ErrUpstreamRejected] otherwise.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if isAuthStatus(e.StatusCode) {
		return shared.ErrAuth
	}
	return shared.ErrUpstreamRejected
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// newStatusError drains and closes resp.Body.
func newStatusError(resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	u := ""
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.Redacted()
	}

	return &StatusError{StatusCode: resp.StatusCode, URL: u, Body: string(body)}
}

// IsAuthFailure reports whether err is an authorization-class failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, shared.ErrAuth)
}
