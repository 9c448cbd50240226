package clinicclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Error codes returned by the server.
const (
	CodeNotAuthorized       = "NOT_AUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeVersionConflict     = "VERSION_CONFLICT"
	CodeVersionLocked       = "VERSION_LOCKED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeInvalidScore        = "INVALID_SCORE"
	CodeReviewAlreadyExists = "REVIEW_ALREADY_EXISTS"
	CodeLockedByOther       = "LOCKED_BY_OTHER"
)

var (
	ErrNotAuthorized   = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrVersionLocked   = errors.New("version is read-only")
	ErrInvalidScore    = errors.New("invalid score")
)

type LockHolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status            int         `json:"-"`
	Code              string      `json:"code"`
	Detail            string      `json:"detail"`
	ExistingVersionID string      `json:"existing_version_id,omitempty"`
	LockedBy          *LockHolder `json:"locked_by,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("clinic api: %d %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("clinic api: %d %s: %s", e.Status, e.Code, e.Detail)
}

// Is lets callers match on the sentinel for the status class.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotAuthorized:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrVersionConflict:
		return e.Status == http.StatusConflict
	case ErrVersionLocked:
		return e.Status == http.StatusLocked
	case ErrInvalidScore:
		return e.Status == http.StatusUnprocessableEntity
	}
	return false
}

func decodeAPIError(status int, body []byte) error {
	e := &APIError{Status: status}
	if err := json.Unmarshal(body, e); err != nil || (e.Code == "" && e.Detail == "") {
		// echo's default error body.
		var plain struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &plain) == nil && plain.Message != "" {
			e.Detail = plain.Message
		} else {
			e.Detail = http.StatusText(status)
		}
	}
	return e
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// versionIDFromDetail recovers a version id embedded in a human-readable
// message, the only place older servers put it.
func versionIDFromDetail(detail string) string {
	return uuidPattern.FindString(detail)
}
