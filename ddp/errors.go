package ddp

import (
	"errors"
	"fmt"
)

// Error is a client-facing error. It is sent to the client as-is, unlike
// other errors which are reported as internal server errors.
type Error struct {
	Code    any    `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
	Type    string `json:"errorType"`
}

// NewError creates a client-facing error with a numeric code
func NewError(code int, reason string) *Error {
	return &Error{
		Code:    code,
		Reason:  reason,
		Message: fmt.Sprintf("%s [%d]", reason, code),
		Type:    "Meteor.Error",
	}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s [%v]", e.Reason, e.Code)
}

// Is matches errors with the same code and reason, so sentinel errors work
// with errors.Is even after being copied.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return fmt.Sprint(e.Code) == fmt.Sprint(t.Code) && e.Reason == t.Reason
}

// WithDetails returns a copy of e carrying details
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

var (
	ErrMatchFailed    = NewError(400, "Match failed")
	ErrInternal       = NewError(500, "Internal server error")
	ErrNotFound       = NewError(404, "Subscription not found")
	ErrMethodNotFound = NewError(404, "Method not found")
)

// clientError maps any error to what the client is allowed to see
func clientError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return ErrInternal
}
