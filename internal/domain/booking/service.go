package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/citaflow/citaflow/internal/platform/auth"
	"github.com/citaflow/citaflow/internal/platform/lock"
	"github.com/citaflow/citaflow/internal/registry"
)

// Verifier asks the resource registry whether a subject exists. Satisfied by
// registry.Client. Results are fail-closed: an unreachable registry reads as
// the subject not existing.
type Verifier interface {
	CheckDoctor(ctx context.Context, id int64, token string) registry.Result
	CheckPatient(ctx context.Context, id int64, token string) registry.Result
	CheckCenter(ctx context.Context, id int64, token string) registry.Result
}

// AdmissionObserver counts admission decisions. Satisfied by
// telemetry.Metrics; nil disables counting.
type AdmissionObserver interface {
	ObserveAdmission(outcome string)
}

// Service implements the admission and lifecycle workflows over the
// appointment store. The conflict check and the insert are two separate
// store accesses; the unique index on (doctor_id, scheduled_at) for
// SCHEDULED rows is what makes racing admissions safe. The optional
// per-doctor lock narrows the window so most races resolve on the read
// side.
type Service struct {
	repo     Repository
	verifier Verifier
	locker   lock.DoctorLocker
	metrics  AdmissionObserver
	logger   zerolog.Logger
}

func NewService(repo Repository, verifier Verifier, locker lock.DoctorLocker, metrics AdmissionObserver, logger zerolog.Logger) *Service {
	return &Service{repo: repo, verifier: verifier, locker: locker, metrics: metrics, logger: logger}
}

// BookRequest carries the raw admission input. ScheduledAt stays textual so
// parse failures surface as validation errors inside the engine, in contract
// order.
type BookRequest struct {
	PatientID   int64  `json:"patient_id"`
	DoctorID    int64  `json:"doctor_id"`
	CenterID    int64  `json:"center_id"`
	ScheduledAt string `json:"scheduled_at"`
	Reason      string `json:"reason"`
}

// Book runs the admission workflow: authorization, field validation, remote
// existence checks (doctor, patient, center, in that order), conflict check,
// then a single committing write. Every rejection leaves the store
// untouched. Registry round-trips happen before any lock is taken; their
// latency is externally controlled.
func (s *Service) Book(ctx context.Context, p auth.Principal, req BookRequest) (*Appointment, error) {
	if !p.Role.Can(auth.OpBookAppointment) {
		return nil, s.reject(ErrForbidden)
	}

	at, err := s.validateBook(req)
	if err != nil {
		return nil, s.reject(err)
	}

	if err := s.verifySubjects(ctx, p.RawToken, &req.DoctorID, &req.PatientID, &req.CenterID); err != nil {
		return nil, s.reject(err)
	}

	appt := &Appointment{
		ScheduledAt:  at,
		Reason:       req.Reason,
		Status:       StatusScheduled,
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		CenterID:     req.CenterID,
		RegisteredBy: p.UserID,
	}

	admit := func(ctx context.Context) error {
		taken, err := s.repo.FindScheduledConflict(ctx, req.DoctorID, at, 0)
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if taken {
			return ErrConflict
		}
		return s.repo.Create(ctx, appt)
	}

	if err := s.serialized(ctx, req.DoctorID, admit); err != nil {
		return nil, s.reject(err)
	}

	s.observe("accepted")
	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("doctor_id", appt.DoctorID).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) validateBook(req BookRequest) (time.Time, error) {
	if req.PatientID <= 0 || req.DoctorID <= 0 || req.CenterID <= 0 ||
		req.ScheduledAt == "" || req.Reason == "" {
		return time.Time{}, fmt.Errorf("%w: patient_id, doctor_id, center_id, scheduled_at and reason are required", ErrValidation)
	}
	at, err := ParseScheduledAt(req.ScheduledAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return at, nil
}

// verifySubjects runs the remote existence checks in contract order. A nil
// id pointer skips that check (used by Modify for unchanged fields).
func (s *Service) verifySubjects(ctx context.Context, token string, doctorID, patientID, centerID *int64) error {
	if doctorID != nil {
		if res := s.verifier.CheckDoctor(ctx, *doctorID, token); !res.Exists {
			return ErrDoctorNotFound
		}
	}
	if patientID != nil {
		res := s.verifier.CheckPatient(ctx, *patientID, token)
		if !res.Exists {
			return ErrPatientNotFound
		}
		if !res.Active {
			return ErrPatientInactive
		}
	}
	if centerID != nil {
		if res := s.verifier.CheckCenter(ctx, *centerID, token); !res.Exists {
			return ErrCenterNotFound
		}
	}
	return nil
}

// serialized runs fn under the per-doctor lock when one is configured. A
// held lock means another admission for this doctor is in flight at the
// same moment; report it as a conflict rather than blocking.
func (s *Service) serialized(ctx context.Context, doctorID int64, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithDoctorLock(ctx, doctorID, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return ErrConflict
	}
	return err
}

// Cancel transitions an appointment to CANCELLED. The state is terminal:
// cancelling twice is rejected, not silently accepted.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id int64) (*Appointment, error) {
	if !p.Role.Can(auth.OpCancelAppointment) {
		return nil, ErrForbidden
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	appt.Status = StatusCancelled

	s.logger.Info().Int64("appointment_id", id).Msg("appointment cancelled")
	return appt, nil
}

// ModifyRequest carries partial updates; nil fields keep the current value.
type ModifyRequest struct {
	PatientID   *int64  `json:"patient_id"`
	DoctorID    *int64  `json:"doctor_id"`
	CenterID    *int64  `json:"center_id"`
	ScheduledAt *string `json:"scheduled_at"`
	Reason      *string `json:"reason"`
}

// ModifyResult reports a supersession: the original appointment now
// CANCELLED and its SCHEDULED replacement.
type ModifyResult struct {
	Changed  bool         `json:"changed"`
	Previous *Appointment `json:"previous"`
	Current  *Appointment `json:"current"`
}

// Modify supersedes an appointment: the original is cancelled and a new
// SCHEDULED record with the merged field set is inserted, both inside one
// store transaction. Re-verification hits the registry only for subject ids
// that actually changed. On any rejection the original is untouched.
func (s *Service) Modify(ctx context.Context, p auth.Principal, id int64, req ModifyRequest) (*ModifyResult, error) {
	if !p.Role.Can(auth.OpModifyAppointment) {
		return nil, ErrForbidden
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot modify a cancelled appointment", ErrValidation)
	}

	merged := *current
	if req.PatientID != nil {
		merged.PatientID = *req.PatientID
	}
	if req.DoctorID != nil {
		merged.DoctorID = *req.DoctorID
	}
	if req.CenterID != nil {
		merged.CenterID = *req.CenterID
	}
	if req.Reason != nil {
		if *req.Reason == "" {
			return nil, fmt.Errorf("%w: reason must not be empty", ErrValidation)
		}
		merged.Reason = *req.Reason
	}
	if req.ScheduledAt != nil {
		at, err := ParseScheduledAt(*req.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		merged.ScheduledAt = at
	}

	// Re-verify only what changed.
	var doctorID, patientID, centerID *int64
	if merged.DoctorID != current.DoctorID {
		doctorID = &merged.DoctorID
	}
	if merged.PatientID != current.PatientID {
		patientID = &merged.PatientID
	}
	if merged.CenterID != current.CenterID {
		centerID = &merged.CenterID
	}
	if err := s.verifySubjects(ctx, p.RawToken, doctorID, patientID, centerID); err != nil {
		return nil, err
	}

	replacement := &Appointment{
		ScheduledAt:  merged.ScheduledAt,
		Reason:       merged.Reason,
		Status:       StatusScheduled,
		PatientID:    merged.PatientID,
		DoctorID:     merged.DoctorID,
		CenterID:     merged.CenterID,
		RegisteredBy: p.UserID,
	}

	supersede := func(ctx context.Context) error {
		taken, err := s.repo.FindScheduledConflict(ctx, merged.DoctorID, merged.ScheduledAt, id)
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if taken {
			return ErrConflict
		}
		return s.repo.Supersede(ctx, id, replacement)
	}

	if err := s.serialized(ctx, merged.DoctorID, supersede); err != nil {
		return nil, err
	}

	previous := *current
	previous.Status = StatusCancelled

	s.logger.Info().
		Int64("superseded_id", id).
		Int64("appointment_id", replacement.ID).
		Msg("appointment modified")
	return &ModifyResult{Changed: true, Previous: &previous, Current: replacement}, nil
}

// Delete hard-removes an appointment regardless of state. Administrative
// escape hatch; it deliberately bypasses the cancelled-is-terminal rule.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id int64) error {
	if p.Role != auth.RoleAdmin {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("appointment_id", id).Msg("appointment deleted")
	return nil
}

// List returns appointments visible to the caller. Patients must scope by
// their patient id and doctors by their doctor id; administrators and
// front-desk staff may combine any filters.
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if !p.Role.Can(auth.OpListAppointments) {
		return nil, 0, ErrForbidden
	}

	switch p.Role {
	case auth.RolePatient:
		if f.PatientID == nil {
			return nil, 0, fmt.Errorf("%w: patient_id filter is required for the patient role", ErrValidation)
		}
		f = Filter{PatientID: f.PatientID}
	case auth.RoleDoctor:
		if f.DoctorID == nil {
			return nil, 0, fmt.Errorf("%w: doctor_id filter is required for the doctor role", ErrValidation)
		}
		f = Filter{DoctorID: f.DoctorID}
	}

	return s.repo.List(ctx, f, limit, offset)
}

// Get fetches one appointment by id. Any authenticated caller may read any
// appointment; the looseness relative to List scoping is deliberate and
// documented.
func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) reject(err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		s.observe("forbidden")
	case errors.Is(err, ErrConflict):
		s.observe("conflict")
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrCenterNotFound):
		s.observe("not_found")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPatientInactive):
		s.observe("validation")
	default:
		s.observe("error")
	}
	return err
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAdmission(outcome)
	}
}
