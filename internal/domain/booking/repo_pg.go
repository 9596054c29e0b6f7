package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// doctorSlotConstraint is the partial unique index enforcing the
// no-double-booking invariant at the store level. Racing admissions that
// slip past the read-side conflict check land here.
const doctorSlotConstraint = "appointment_doctor_slot_uniq"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `id, scheduled_at, reason, status, patient_id, doctor_id, center_id, registered_by, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ScheduledAt, &a.Reason, &a.Status,
		&a.PatientID, &a.DoctorID, &a.CenterID, &a.RegisteredBy, &a.CreatedAt)
	return &a, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointment (scheduled_at, reason, status, patient_id, doctor_id, center_id, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`,
		a.ScheduledAt, a.Reason, a.Status, a.PatientID, a.DoctorID, a.CenterID, a.RegisteredBy,
	).Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err, doctorSlotConstraint) {
		return ErrConflict
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointment WHERE 1=1`
	var args []interface{}
	idx := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, idx)
		query += cond
		countQuery += cond
		args = append(args, value)
		idx++
	}

	if f.DoctorID != nil {
		addFilter(` AND doctor_id = $%d`, *f.DoctorID)
	}
	if f.PatientID != nil {
		addFilter(` AND patient_id = $%d`, *f.PatientID)
	}
	if f.CenterID != nil {
		addFilter(` AND center_id = $%d`, *f.CenterID)
	}
	if f.Status != nil {
		addFilter(` AND status = $%d`, *f.Status)
	}
	if f.Date != nil {
		addFilter(` AND scheduled_at::date = $%d::date`, *f.Date)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY scheduled_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointment SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Supersede(ctx context.Context, oldID int64, replacement *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE appointment SET status = $2 WHERE id = $1 AND status = $3`,
		oldID, StatusCancelled, StatusScheduled)
	if err != nil {
		return fmt.Errorf("cancel superseded appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Deleted or cancelled under us; the caller re-reads and reports.
		return ErrNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointment (scheduled_at, reason, status, patient_id, doctor_id, center_id, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`,
		replacement.ScheduledAt, replacement.Reason, replacement.Status,
		replacement.PatientID, replacement.DoctorID, replacement.CenterID, replacement.RegisteredBy,
	).Scan(&replacement.ID, &replacement.CreatedAt)
	if isUniqueViolation(err, doctorSlotConstraint) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert superseding appointment: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) FindScheduledConflict(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND scheduled_at = $2 AND status = $3 AND id <> $4
		)`,
		doctorID, at, StatusScheduled, excludeID,
	).Scan(&exists)
	return exists, err
}
