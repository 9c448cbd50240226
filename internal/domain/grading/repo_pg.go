package grading

import (
	"context"
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

const gradeCols = `id, appointment_id, section, score, remarks, is_final, graded_by, created_at, updated_at`

func scanGrade(row pgx.Row) (*Grade, error) {
	var (
		g       Grade
		remarks *string
	)
	err := row.Scan(&g.ID, &g.AppointmentID, &g.Section, &g.Score, &remarks, &g.IsFinal, &g.GradedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if remarks != nil {
		g.Remarks = *remarks
	}
	return &g, nil
}

// Upsert relies on the (appointment_id, section) unique constraint. xmax is
// zero only on a freshly inserted row.
func (r *repoPG) Upsert(ctx context.Context, g *Grade) (bool, error) {
	now := time.Now().UTC()
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO grading (id, appointment_id, section, score, remarks, is_final, graded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $8)
		ON CONFLICT (appointment_id, section) DO UPDATE SET
			score = EXCLUDED.score,
			remarks = EXCLUDED.remarks,
			is_final = EXCLUDED.is_final,
			graded_by = EXCLUDED.graded_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New(), g.AppointmentID, g.Section, g.Score, g.Remarks, g.IsFinal, g.GradedBy, now,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt, &created)
	return created, err
}

func (r *repoPG) Get(ctx context.Context, appointmentID uuid.UUID, section string) (*Grade, error) {
	return scanGrade(r.conn(ctx).QueryRow(ctx,
		`SELECT `+gradeCols+` FROM grading WHERE appointment_id = $1 AND section = $2`,
		appointmentID, section))
}

func (r *repoPG) List(ctx context.Context, appointmentID uuid.UUID) ([]*Grade, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+gradeCols+` FROM grading WHERE appointment_id = $1 ORDER BY section`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Grade
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
