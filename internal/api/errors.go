package api

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes attached to API failures. CodeNotEditable is the one code the
// session controller branches on: it marks the attempt as permanently
// read-only.
const (
	CodeNotEditable  = "attempt_not_editable"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeRateLimited  = "rate_limited"
	CodeTransient    = "transient"
)

// notEditableMessage is the legacy free-text marker older servers put in the
// error message instead of a structured code.
const notEditableMessage = "attempt is not editable"

// Error is a failed API call: non-2xx status or an ok:false envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
	}
	return "api: " + e.Message
}

// IsNotEditable reports whether err means the attempt no longer accepts
// writes. It prefers the structured code and falls back to matching the
// legacy message text.
func IsNotEditable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == CodeNotEditable {
		return true
	}
	return strings.Contains(apiErr.Message, notEditableMessage)
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 401
}
