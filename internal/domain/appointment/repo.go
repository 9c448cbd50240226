package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// WithTx runs fn in a transaction; nested calls join the outer one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate reads the appointment and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error)

	// AcquireLock takes the lock if it is free or already held by holder.
	// It reports false when another actor holds it.
	AcquireLock(ctx context.Context, id uuid.UUID, holder LockHolder, at time.Time) (bool, error)
	ReleaseLock(ctx context.Context, id uuid.UUID) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status string, submitted bool) error

	AddStatusHistory(ctx context.Context, sh *StatusHistory) error
	GetStatusHistory(ctx context.Context, appointmentID uuid.UUID) ([]*StatusHistory, error)
}
