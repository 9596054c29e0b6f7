package booking

import (
	"context"
	"time"
)

// Filter narrows List results. Nil fields are not applied. Date matches on
// calendar-day equality against the scheduled instant, not an interval.
type Filter struct {
	DoctorID  *int64
	PatientID *int64
	CenterID  *int64
	Status    *Status
	Date      *time.Time
}

type Repository interface {
	// Create persists a new appointment and fills ID and CreatedAt. A
	// scheduled slot collision surfaces as ErrConflict via the store's
	// unique index.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// Supersede cancels the appointment oldID and inserts replacement in a
	// single transaction; either both happen or neither does.
	Supersede(ctx context.Context, oldID int64, replacement *Appointment) error
	Delete(ctx context.Context, id int64) error
	// FindScheduledConflict reports whether the doctor already has a
	// SCHEDULED appointment at exactly this instant, ignoring excludeID
	// (0 excludes nothing).
	FindScheduledConflict(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error)
}
