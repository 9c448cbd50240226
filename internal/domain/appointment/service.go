package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Status != StatusScheduled {
		return fmt.Errorf("new appointments must be %q, got %q", StatusScheduled, a.Status)
	}
	if a.ScheduledAt.IsZero() {
		a.ScheduledAt = s.now()
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForUpdate must run inside a transaction for the row lock to hold.
func (s *Service) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetForUpdate(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !IsKnownStatus(status) {
		return nil, 0, fmt.Errorf("unknown status: %s", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Lock gives holder the edit lock. An override caller facing a foreign lock
// proceeds without taking it; anyone else gets a *LockError.
func (s *Service) Lock(ctx context.Context, id uuid.UUID, holder LockHolder, override bool) (*Appointment, error) {
	ok, err := s.repo.AcquireLock(ctx, id, holder, s.now())
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && !override && a.LockedByOther(holder.ID) {
		h := LockHolder{}
		if a.LockedBy != nil {
			h = *a.LockedBy
		}
		return a, &LockError{Holder: h}
	}
	return a, nil
}

// Unlock releases the lock held by actorID. Releasing a free lock is a no-op.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID, actorID string, override bool) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !a.IsLocked {
		return nil
	}
	if a.LockedByOther(actorID) && !override {
		h := LockHolder{}
		if a.LockedBy != nil {
			h = *a.LockedBy
		}
		return &LockError{Holder: h}
	}
	return s.repo.ReleaseLock(ctx, id)
}

// Transition moves the appointment to status `to` and records who did it.
// Moving to the current status is a no-op.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to, actorID string) (*Appointment, error) {
	var out *Appointment
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == to {
			out = a
			return nil
		}
		if !CanTransition(a.Status, to) {
			return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, a.Status, to)
		}

		submitted := a.IsSubmittedForReview
		switch to {
		case StatusSubmittedForReview:
			submitted = true
		case StatusReturnedForChanges:
			submitted = false
		}
		if err := s.repo.UpdateStatus(ctx, id, to, submitted); err != nil {
			return err
		}
		if err := s.repo.AddStatusHistory(ctx, &StatusHistory{
			AppointmentID: id,
			FromStatus:    a.Status,
			ToStatus:      to,
			ChangedBy:     actorID,
			ChangedAt:     s.now(),
		}); err != nil {
			return fmt.Errorf("record status history: %w", err)
		}
		a.Status = to
		a.IsSubmittedForReview = submitted
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetStatusHistory(ctx, id)
}
