package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrLockedByOther     = errors.New("appointment is locked by another user")
)

// LockError reports the current holder of a lock the caller could not take.
type LockError struct {
	Holder LockHolder
}

func (e *LockError) Error() string {
	if e.Holder.Name != "" {
		return fmt.Sprintf("appointment is in progress by %s", e.Holder.Name)
	}
	return ErrLockedByOther.Error()
}

func (e *LockError) Unwrap() error { return ErrLockedByOther }
