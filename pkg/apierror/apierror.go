// Package apierror is the JSON error body returned by the clinic API.
package apierror

import "github.com/labstack/echo/v4"

const (
	CodeNotAuthorized     = "NOT_AUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeVersionLocked     = "VERSION_LOCKED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidScore      = "INVALID_SCORE"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeInternal          = "INTERNAL"
)

// Error is rendered as-is by echo's error handler. It must not implement
// error: echo flattens error-typed messages to {"message": ...}.
type Error struct {
	Code              string      `json:"code"`
	Detail            string      `json:"detail"`
	ExistingVersionID string      `json:"existing_version_id,omitempty"`
	LockedBy          interface{} `json:"locked_by,omitempty"`
}

func New(status int, code, detail string) *echo.HTTPError {
	return echo.NewHTTPError(status, &Error{Code: code, Detail: detail})
}

func With(status int, body *Error) *echo.HTTPError {
	return echo.NewHTTPError(status, body)
}
