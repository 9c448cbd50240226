package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optoclinic/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const apptCols = `id, patient_id, patient_name, status, scheduled_at,
	is_student_case, is_submitted_for_review,
	is_locked, locked_by_id, locked_by_name, locked_at,
	created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Appointment, error) {
	var (
		a                      Appointment
		patientName            *string
		lockedByID, lockedName *string
	)
	err := row.Scan(&a.ID, &a.PatientID, &patientName, &a.Status, &a.ScheduledAt,
		&a.IsStudentCase, &a.IsSubmittedForReview,
		&a.IsLocked, &lockedByID, &lockedName, &a.LockedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if patientName != nil {
		a.PatientName = *patientName
	}
	if lockedByID != nil {
		a.LockedBy = &LockHolder{ID: *lockedByID}
		if lockedName != nil {
			a.LockedBy.Name = *lockedName
		}
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, patient_name, status, scheduled_at,
			is_student_case, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $7)`,
		a.ID, a.PatientID, a.PatientName, a.Status, a.ScheduledAt, a.IsStudentCase, now)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE ($1 = '' OR status = $1)
		ORDER BY scheduled_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AcquireLock(ctx context.Context, id uuid.UUID, holder LockHolder, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET is_locked = TRUE, locked_by_id = $2, locked_by_name = NULLIF($3, ''),
			locked_at = COALESCE(CASE WHEN locked_by_id = $2 THEN locked_at END, $4),
			updated_at = NOW()
		WHERE id = $1 AND (NOT is_locked OR locked_by_id = $2)`,
		id, holder.ID, holder.Name, at)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET is_locked = FALSE, locked_by_id = NULL, locked_by_name = NULL, locked_at = NULL,
			updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, submitted bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $2, is_submitted_for_review = $3, updated_at = NOW()
		WHERE id = $1`, id, status, submitted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddStatusHistory(ctx context.Context, sh *StatusHistory) error {
	sh.ID = uuid.New()
	if sh.ChangedAt.IsZero() {
		sh.ChangedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment_status_history (id, appointment_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sh.ID, sh.AppointmentID, sh.FromStatus, sh.ToStatus, sh.ChangedBy, sh.ChangedAt)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, appointmentID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, from_status, to_status, COALESCE(changed_by, ''), changed_at
		FROM appointment_status_history WHERE appointment_id = $1 ORDER BY changed_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusHistory
	for rows.Next() {
		var sh StatusHistory
		if err := rows.Scan(&sh.ID, &sh.AppointmentID, &sh.FromStatus, &sh.ToStatus, &sh.ChangedBy, &sh.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &sh)
	}
	return items, rows.Err()
}
