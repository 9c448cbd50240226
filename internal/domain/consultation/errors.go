package consultation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

var (
	ErrNotFound          = errors.New("consultation version not found")
	ErrVersionConflict   = errors.New("consultation version conflict")
	ErrVersionLocked     = errors.New("this version is read-only")
	ErrInvalidTransition = errors.New("invalid consultation transition")
	ErrInvalidSection    = errors.New("unknown clinical section")

	// errDuplicateOpen is returned by stores when the open-version unique
	// index rejects an insert.
	errDuplicateOpen = fmt.Errorf("%w: open version already exists", ErrVersionConflict)
)

const (
	CodeReviewAlreadyExists = "REVIEW_ALREADY_EXISTS"
	CodeLockedByOther       = "LOCKED_BY_OTHER"
)

// ConflictError is a VersionConflict with enough detail for the caller to
// navigate to the version or lock holder that blocked them.
type ConflictError struct {
	Code              string
	ExistingVersionID uuid.UUID
	LockedBy          *appointment.LockHolder
}

func (e *ConflictError) Error() string {
	return e.Detail()
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// Detail is the human-readable message. For existing reviews it ends with the
// version id, which legacy clients parse.
func (e *ConflictError) Detail() string {
	switch e.Code {
	case CodeReviewAlreadyExists:
		return "A review is already in progress for this consultation. Review version: " + e.ExistingVersionID.String()
	case CodeLockedByOther:
		if e.LockedBy != nil && e.LockedBy.Name != "" {
			return "Consultation is in progress by " + e.LockedBy.Name
		}
		return "Consultation is in progress by another user"
	default:
		return ErrVersionConflict.Error()
	}
}

func lockConflict(err error) error {
	var le *appointment.LockError
	if errors.As(err, &le) {
		h := le.Holder
		return &ConflictError{Code: CodeLockedByOther, LockedBy: &h}
	}
	return err
}

// ErrInvalidVersionType is returned for version types outside
// student, professional and review.
var ErrInvalidVersionType = errors.New("unknown version type")
