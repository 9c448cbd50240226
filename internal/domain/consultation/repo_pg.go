package consultation

import (
	"context"
	"encoding/json"
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

const versionCols = `id, appointment_id, version_type, is_final, created_by_id, diff_snapshot, created_at, finalized_at`

func scanVersion(row pgx.Row) (*ConsultationVersion, error) {
	var (
		v    ConsultationVersion
		vt   string
		snap []byte
	)
	if err := row.Scan(&v.ID, &v.AppointmentID, &vt, &v.IsFinal, &v.CreatedByID, &snap, &v.CreatedAt, &v.FinalizedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.VersionType = VersionType(vt)
	if len(snap) > 0 {
		v.DiffSnapshot = &DiffSnapshot{}
		if err := json.Unmarshal(snap, v.DiffSnapshot); err != nil {
			return nil, fmt.Errorf("decode diff_snapshot of %s: %w", v.ID, err)
		}
	}
	return &v, nil
}

func snapshotParam(s *DiffSnapshot) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) CreateVersion(ctx context.Context, v *ConsultationVersion) error {
	v.ID = uuid.New()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	snap, err := snapshotParam(v.DiffSnapshot)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_version (id, appointment_id, version_type, is_final, created_by_id, diff_snapshot, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6)`,
		v.ID, v.AppointmentID, string(v.VersionType), v.CreatedByID, snap, v.CreatedAt)
	if db.IsUniqueViolation(err) {
		return errDuplicateOpen
	}
	return err
}

func (r *repoPG) GetVersion(ctx context.Context, id uuid.UUID) (*ConsultationVersion, error) {
	return scanVersion(r.conn(ctx).QueryRow(ctx, `SELECT `+versionCols+` FROM consultation_version WHERE id = $1`, id))
}

func (r *repoPG) ListVersions(ctx context.Context, appointmentID uuid.UUID) ([]*ConsultationVersion, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+versionCols+` FROM consultation_version
		WHERE appointment_id = $1 ORDER BY created_at, id`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ConsultationVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *repoPG) FindOpenVersion(ctx context.Context, appointmentID uuid.UUID, vt VersionType) (*ConsultationVersion, error) {
	v, err := scanVersion(r.conn(ctx).QueryRow(ctx, `SELECT `+versionCols+` FROM consultation_version
		WHERE appointment_id = $1 AND version_type = $2 AND NOT is_final`, appointmentID, string(vt)))
	if err == ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (r *repoPG) MarkFinal(ctx context.Context, id uuid.UUID, snapshot *DiffSnapshot) error {
	snap, err := snapshotParam(snapshot)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation_version
		SET is_final = TRUE, finalized_at = NOW(), diff_snapshot = COALESCE($2, diff_snapshot)
		WHERE id = $1 AND NOT is_final`, id, snap)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetVersion(ctx, id); err != nil {
			return err
		}
		return ErrVersionLocked
	}
	return nil
}

func (r *repoPG) ListRecords(ctx context.Context, versionID uuid.UUID) ([]*ClinicalRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, version_id, section, data, COALESCE(updated_by, ''), updated_at
		FROM clinical_record WHERE version_id = $1 ORDER BY section`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClinicalRecord
	for rows.Next() {
		var (
			rec  ClinicalRecord
			data []byte
		)
		if err := rows.Scan(&rec.ID, &rec.VersionID, &rec.Section, &data, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", rec.Section, err)
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}

func (r *repoPG) UpsertRecord(ctx context.Context, rec *ClinicalRecord) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}
	// Nothing is written into a final version, whatever the caller read earlier.
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_record (id, version_id, section, data, updated_by, updated_at)
		SELECT $1, $2, $3, $4, $5, NOW()
		WHERE EXISTS (SELECT 1 FROM consultation_version WHERE id = $2 AND NOT is_final)
		ON CONFLICT (version_id, section)
		DO UPDATE SET data = EXCLUDED.data, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		RETURNING id, updated_at`,
		uuid.New(), rec.VersionID, rec.Section, data, rec.UpdatedBy).Scan(&rec.ID, &rec.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrVersionLocked
	}
	return err
}

func (r *repoPG) CopyRecords(ctx context.Context, from, to uuid.UUID, by string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_record (id, version_id, section, data, updated_by, updated_at)
		SELECT gen_random_uuid(), $2, section, data, $3, NOW()
		FROM clinical_record WHERE version_id = $1`, from, to, by)
	if err != nil {
		return 0, fmt.Errorf("copy records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) CountRecords(ctx context.Context, versionID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical_record WHERE version_id = $1`, versionID).Scan(&n)
	return n, err
}
