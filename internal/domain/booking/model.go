package booking

import (
	"errors"
	"time"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	// StatusCompleted is a declared extension point. No workflow produces it
	// yet; it is accepted in list filters so historical data stays queryable
	// if a completion flow lands later.
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Appointment maps to the appointment table. The subject ids are opaque
// references into the resource registry; there is no local foreign key, they
// are validated at admission time through the registry client.
type Appointment struct {
	ID           int64     `db:"id" json:"id"`
	ScheduledAt  time.Time `db:"scheduled_at" json:"scheduled_at"`
	Reason       string    `db:"reason" json:"reason"`
	Status       Status    `db:"status" json:"status"`
	PatientID    int64     `db:"patient_id" json:"patient_id"`
	DoctorID     int64     `db:"doctor_id" json:"doctor_id"`
	CenterID     int64     `db:"center_id" json:"center_id"`
	RegisteredBy int64     `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Sentinel errors for the admission and lifecycle workflows. Handlers map
// these to wire status codes in one place.
var (
	ErrValidation       = errors.New("validation error")
	ErrForbidden        = errors.New("operation not permitted for role")
	ErrNotFound         = errors.New("appointment not found")
	ErrDoctorNotFound   = errors.New("doctor does not exist")
	ErrPatientNotFound  = errors.New("patient does not exist")
	ErrCenterNotFound   = errors.New("medical center does not exist")
	ErrPatientInactive  = errors.New("patient is not active")
	ErrConflict         = errors.New("doctor already has an appointment at that time")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
)

// acceptedLayouts are the time formats Book and Modify accept. RFC 3339
// first; the offset-less form matches what booking front-ends send.
var acceptedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseScheduledAt parses the wire representation of a scheduled instant.
func ParseScheduledAt(raw string) (time.Time, error) {
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("invalid date format, use ISO 8601 (YYYY-MM-DDTHH:MM:SS)")
}
