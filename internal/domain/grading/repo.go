package grading

import (
	"context"

	"github.com/google/uuid"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

// Repository persists grades keyed by (appointment, section).
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Upsert creates or replaces the grade for g's (appointment, section)
	// and reports whether a new row was created.
	Upsert(ctx context.Context, g *Grade) (created bool, err error)
	Get(ctx context.Context, appointmentID uuid.UUID, section string) (*Grade, error)
	List(ctx context.Context, appointmentID uuid.UUID) ([]*Grade, error)
}

// AppointmentStore is the part of the appointment service grading needs.
type AppointmentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to, actorID string) (*appointment.Appointment, error)
}
