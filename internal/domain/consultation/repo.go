package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

// Repository stores consultation versions and their clinical records.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// CreateVersion fails with ErrVersionConflict when an open version of the
	// same type already exists for the appointment.
	CreateVersion(ctx context.Context, v *ConsultationVersion) error
	GetVersion(ctx context.Context, id uuid.UUID) (*ConsultationVersion, error)
	ListVersions(ctx context.Context, appointmentID uuid.UUID) ([]*ConsultationVersion, error)
	// FindOpenVersion returns nil, nil when no open version of vt exists.
	FindOpenVersion(ctx context.Context, appointmentID uuid.UUID, vt VersionType) (*ConsultationVersion, error)
	// MarkFinal sets is_final and stores the snapshot. It fails with
	// ErrVersionLocked if the version was already final.
	MarkFinal(ctx context.Context, id uuid.UUID, snapshot *DiffSnapshot) error

	ListRecords(ctx context.Context, versionID uuid.UUID) ([]*ClinicalRecord, error)
	// UpsertRecord fails with ErrVersionLocked when the version is final.
	UpsertRecord(ctx context.Context, rec *ClinicalRecord) error
	// CopyRecords duplicates every record of one version into another and
	// returns how many were copied.
	CopyRecords(ctx context.Context, from, to uuid.UUID, by string) (int, error)
	CountRecords(ctx context.Context, versionID uuid.UUID) (int, error)
}

// AppointmentStore is the scheduling collaborator the lifecycle drives.
// *appointment.Service satisfies it.
type AppointmentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Lock(ctx context.Context, id uuid.UUID, holder appointment.LockHolder, override bool) (*appointment.Appointment, error)
	Unlock(ctx context.Context, id uuid.UUID, actorID string, override bool) error
	Transition(ctx context.Context, id uuid.UUID, to, actorID string) (*appointment.Appointment, error)
}
