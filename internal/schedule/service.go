package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/clinic-scheduling/internal/config"
	redisclient "github.com/carelink/clinic-scheduling/internal/redis"
)

const (
	ActionAppointmentCreated     = "appointment_created"
	ActionAppointmentConfirmed   = "appointment_confirmed"
	ActionAppointmentCheckedIn   = "appointment_checked_in"
	ActionAppointmentCompleted   = "appointment_completed"
	ActionAppointmentCanceled    = "appointment_canceled"
	ActionAppointmentNoShow      = "appointment_no_show"
	ActionAppointmentRescheduled = "appointment_rescheduled"
	ActionOverrideCreated        = "override_created"
	ActionOverrideDeleted        = "override_deleted"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrPastDate          = errors.New("date is in the past")
	ErrSlotTaken         = errors.New("slot is no longer available")
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
	ErrCapacityExceeded  = errors.New("daily appointment cap reached")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor is not allowed to perform this action")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log.With().Str("component", "schedule").Logger(),
	}
}

// BookingRequest is a validated slot-selection input for CreateAppointment.
type BookingRequest struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	LocationID   uuid.UUID
	TypeID       uuid.UUID
	Date         time.Time
	Start        TimeOfDay
	Reason       string
	ContactPhone string
}

// ComputeAvailableSlots returns the bookable start times for a doctor at a
// location on a given date. Repository read failures degrade to an empty
// result with ReasonLookupFailed: an empty slot list is always safe to
// render, and slot display must not take the caller down with it.
func (s *Service) ComputeAvailableSlots(ctx context.Context, doctorID, locationID uuid.UUID, dateStr string, intervalMins int) (AvailabilityResult, error) {
	if intervalMins <= 0 {
		intervalMins = s.cfg.SlotIntervalMins
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return emptyResult(""), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if date.Before(Today()) {
		return emptyResult(""), ErrPastDate
	}

	in, err := s.collectDayInputs(ctx, doctorID, locationID, date, intervalMins, uuid.Nil)
	if err != nil {
		s.log.Warn().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("location_id", locationID.String()).
			Str("date", dateStr).
			Msg("availability lookup failed, returning no slots")
		return emptyResult(ReasonLookupFailed), nil
	}

	return availableSlots(in), nil
}

// collectDayInputs fetches and normalizes everything the slot algebra needs
// for one (doctor, location, date) triple. excludeID drops one appointment
// from the booked set, so a reschedule does not conflict with itself.
func (s *Service) collectDayInputs(ctx context.Context, doctorID, locationID uuid.UUID, date time.Time, intervalMins int, excludeID uuid.UUID) (dayInputs, error) {
	weekday := ISOWeekday(date)

	periods, err := s.repo.ListWorkingPeriods(ctx, locationID, weekday)
	if err != nil {
		return dayInputs{}, fmt.Errorf("list working periods: %w", err)
	}

	booked, err := s.repo.ListBlockingAppointments(ctx, doctorID, locationID, date)
	if err != nil {
		return dayInputs{}, fmt.Errorf("list blocking appointments: %w", err)
	}
	if excludeID != uuid.Nil {
		kept := booked[:0]
		for _, a := range booked {
			if a.ID != excludeID {
				kept = append(kept, a)
			}
		}
		booked = kept
	}

	overrides, err := s.repo.ListOverridesForDay(ctx, doctorID, locationID, date)
	if err != nil {
		return dayInputs{}, fmt.Errorf("list overrides: %w", err)
	}

	cap, err := s.repo.GetDailyCap(ctx, doctorID, locationID, weekday)
	if err != nil {
		if !errors.Is(err, ErrNoDailyCap) {
			return dayInputs{}, fmt.Errorf("get daily cap: %w", err)
		}
		cap = nil
	}

	return dayInputs{
		Periods:      periods,
		Booked:       booked,
		Overrides:    overrides,
		Cap:          cap,
		IntervalMins: intervalMins,
	}, nil
}

// CreateAppointment books a slot for a patient. The availability check is
// re-run inside a distributed lock keyed on the exact slot, so two
// concurrent bookers for the same doctor/location/date/start cannot both
// insert.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil || req.LocationID == uuid.Nil || req.TypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing required booking fields", ErrInvalidInput)
	}

	date := Midnight(req.Date)
	if date.Before(Today()) {
		return nil, ErrPastDate
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if _, err := s.repo.GetLocationByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load location: %w", err)
	}

	typ, err := s.repo.GetAppointmentTypeByID(ctx, req.TypeID)
	if err != nil {
		if errors.Is(err, ErrTypeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	start := req.Start
	end := start.Add(typ.DurationMinutes)

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, bookingKey(req.DoctorID, req.LocationID, date, start), func(lockCtx context.Context) error {
		// Inside the critical section re-run the availability computation
		// against the exact requested interval.
		in, err := s.collectDayInputs(lockCtx, req.DoctorID, req.LocationID, date, s.cfg.SlotIntervalMins, uuid.Nil)
		if err != nil {
			return fmt.Errorf("availability re-check: %w", err)
		}
		if err := checkBookable(in, start, end); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			PatientID:  req.PatientID,
			DoctorID:   req.DoctorID,
			LocationID: req.LocationID,
			TypeID:     req.TypeID,
			Date:       date,
			Start:      start,
			End:        end,
			Status:     StatusScheduled,
			Reason:     req.Reason,
			CreatedBy:  req.PatientID,
			UpdatedBy:  req.PatientID,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logAudit(lockCtx, req.PatientID, &appt.ID, ActionAppointmentCreated, map[string]any{
			"doctor_id":   req.DoctorID.String(),
			"location_id": req.LocationID.String(),
			"date":        date.Format(DateFormat),
			"start":       start.String(),
			"end":         end.String(),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	// Phone capture is a convenience side effect of booking; its failure
	// must not unwind a committed appointment.
	if req.ContactPhone != "" {
		if err := s.repo.UpdatePatientPhone(ctx, req.PatientID, req.ContactPhone); err != nil {
			s.log.Warn().Err(err).
				Str("patient_id", req.PatientID.String()).
				Msg("failed to update patient phone after booking")
		}
	}

	return created, nil
}

// checkBookable verifies the exact interval [start, end) against the day's
// data. The interval check is exact rather than slot-aligned because an
// appointment type's duration may exceed the display interval.
func checkBookable(in dayInputs, start, end TimeOfDay) error {
	if len(in.Periods) == 0 {
		return ErrSlotTaken
	}
	if in.Cap != nil && countBlocking(in.Booked) >= in.Cap.MaxAppointments {
		return ErrCapacityExceeded
	}

	inside := false
	for _, p := range in.Periods {
		if p.Start <= start && end <= p.End {
			inside = true
			break
		}
	}
	if !inside {
		return ErrSlotTaken
	}

	for _, o := range in.Overrides {
		if o.FullDay() {
			return ErrSlotTaken
		}
		if o.Unavailable && o.Start != nil && o.End != nil && overlaps(start, end, *o.Start, *o.End) {
			return ErrSlotTaken
		}
	}

	for _, a := range in.Booked {
		if a.Status.Blocking() && overlaps(start, end, a.Start, a.End) {
			return ErrSlotTaken
		}
	}

	return nil
}

func bookingKey(doctorID, locationID uuid.UUID, date time.Time, start TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s:%s", doctorID, locationID, date.Format(DateFormat), start)
}

// GetAppointment retrieves one hydrated appointment, scoped to the actor's
// visibility. A row outside that scope reports not-found, never forbidden,
// so callers cannot probe for existence.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !canSee(actor, &detail.Appointment) {
		return nil, ErrAppointmentNotFound
	}
	return detail, nil
}

func canSee(actor Actor, appt *Appointment) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return appt.PatientID == actor.ID
	case RoleDoctor:
		return appt.DoctorID == actor.ID
	}
	return false
}

// ListPatientAppointments returns a patient's history partitioned into
// upcoming and past. Patients may only list themselves.
func (s *Service) ListPatientAppointments(ctx context.Context, actor Actor, patientID uuid.UUID) (AppointmentHistory, error) {
	switch actor.Role {
	case RoleAdmin:
	case RolePatient:
		if actor.ID != patientID {
			return AppointmentHistory{}, ErrForbidden
		}
	default:
		return AppointmentHistory{}, ErrForbidden
	}

	details, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return AppointmentHistory{}, fmt.Errorf("list appointments by patient: %w", err)
	}
	return partitionHistory(details, Today()), nil
}

// ListDoctorAppointments is the doctor-side counterpart.
func (s *Service) ListDoctorAppointments(ctx context.Context, actor Actor, doctorID uuid.UUID) (AppointmentHistory, error) {
	switch actor.Role {
	case RoleAdmin:
	case RoleDoctor:
		if actor.ID != doctorID {
			return AppointmentHistory{}, ErrForbidden
		}
	default:
		return AppointmentHistory{}, ErrForbidden
	}

	details, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return AppointmentHistory{}, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return partitionHistory(details, Today()), nil
}

// partitionHistory splits appointments into upcoming and past. A terminal
// status forces past regardless of date; a canceled appointment for
// tomorrow is history, not a plan.
func partitionHistory(details []AppointmentDetail, today time.Time) AppointmentHistory {
	h := AppointmentHistory{
		Upcoming: []AppointmentDetail{},
		Past:     []AppointmentDetail{},
	}
	for _, d := range details {
		if !d.Status.Terminal() && !d.Date.Before(today) {
			h.Upcoming = append(h.Upcoming, d)
		} else {
			h.Past = append(h.Past, d)
		}
	}
	// Past reads most recent first.
	for i, j := 0, len(h.Past)-1; i < j; i, j = i+1, j-1 {
		h.Past[i], h.Past[j] = h.Past[j], h.Past[i]
	}
	return h
}

// Status transitions. Each loads the row under the actor's visibility,
// checks the transition table and swaps the status with a compare-and-swap
// update so a concurrent transition loses cleanly.

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, []AppointmentStatus{StatusScheduled},
		StatusConfirmed, ActionAppointmentConfirmed, staffOnly)
}

func (s *Service) CheckInAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, []AppointmentStatus{StatusScheduled, StatusConfirmed},
		StatusCheckedIn, ActionAppointmentCheckedIn, staffOnly)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, []AppointmentStatus{StatusConfirmed, StatusCheckedIn},
		StatusCompleted, ActionAppointmentCompleted, staffOnly)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, []AppointmentStatus{StatusScheduled, StatusConfirmed},
		StatusNoShow, ActionAppointmentNoShow, staffOnly)
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, BlockingStatuses,
		StatusCanceled, ActionAppointmentCanceled, anyParty)
}

// staffOnly allows the appointment's doctor or an admin to act.
func staffOnly(actor Actor, appt *Appointment) bool {
	return actor.Role == RoleAdmin || (actor.Role == RoleDoctor && appt.DoctorID == actor.ID)
}

// anyParty additionally allows the booking patient.
func anyParty(actor Actor, appt *Appointment) bool {
	return staffOnly(actor, appt) || (actor.Role == RolePatient && appt.PatientID == actor.ID)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, actor Actor, allowedFrom []AppointmentStatus, to AppointmentStatus, action string, allowed func(Actor, *Appointment) bool) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !canSee(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	if !allowed(actor, appt) {
		return nil, ErrForbidden
	}

	legal := false
	for _, from := range allowedFrom {
		if appt.Status == from {
			legal = true
			break
		}
	}
	if !legal {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to, actor.ID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row exists but the status moved underneath us.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logAudit(ctx, actor.ID, &updated.ID, action, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// RescheduleAppointment moves a blocking appointment to a new slot. The new
// slot is validated under the booking lock exactly like a fresh booking,
// with the appointment itself excluded from the conflict set.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, actor Actor, newDate time.Time, newStart TimeOfDay) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !canSee(actor, appt) {
		return nil, ErrAppointmentNotFound
	}
	if !anyParty(actor, appt) {
		return nil, ErrForbidden
	}
	if !appt.Status.Blocking() {
		return nil, ErrInvalidTransition
	}

	date := Midnight(newDate)
	if date.Before(Today()) {
		return nil, ErrPastDate
	}

	duration := int(appt.End - appt.Start)
	start := newStart
	end := start.Add(duration)

	var updated *Appointment

	err = s.locker.WithBookingLock(ctx, bookingKey(appt.DoctorID, appt.LocationID, date, start), func(lockCtx context.Context) error {
		in, err := s.collectDayInputs(lockCtx, appt.DoctorID, appt.LocationID, date, s.cfg.SlotIntervalMins, appt.ID)
		if err != nil {
			return fmt.Errorf("availability re-check: %w", err)
		}
		if err := checkBookable(in, start, end); err != nil {
			return err
		}

		moved, err := s.repo.RescheduleAppointment(lockCtx, appt.ID, date, start, end, actor.ID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		updated = moved

		s.logAudit(lockCtx, actor.ID, &appt.ID, ActionAppointmentRescheduled, map[string]any{
			"old_date":  appt.Date.Format(DateFormat),
			"old_start": appt.Start.String(),
			"new_date":  date.Format(DateFormat),
			"new_start": start.String(),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return updated, nil
}

// Override management

func (s *Service) CreateOverride(ctx context.Context, actor Actor, o AvailabilityOverride) (*AvailabilityOverride, error) {
	if actor.Role != RoleAdmin && !(actor.Role == RoleDoctor && actor.ID == o.DoctorID) {
		return nil, ErrForbidden
	}
	if o.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidInput)
	}
	if (o.Start == nil) != (o.End == nil) {
		return nil, fmt.Errorf("%w: start and end must both be set or both be empty", ErrInvalidInput)
	}
	if o.Start != nil && *o.Start >= *o.End {
		return nil, fmt.Errorf("%w: override start must precede end", ErrInvalidInput)
	}

	o.Date = Midnight(o.Date)
	if o.Date.Before(Today()) {
		return nil, ErrPastDate
	}

	o.CreatedBy = actor.ID
	created, err := s.repo.CreateOverride(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("create override: %w", err)
	}

	s.logAudit(ctx, actor.ID, nil, ActionOverrideCreated, map[string]any{
		"override_id": created.ID.String(),
		"doctor_id":   created.DoctorID.String(),
		"date":        created.Date.Format(DateFormat),
		"full_day":    created.FullDay(),
	})

	return created, nil
}

func (s *Service) ListOverrides(ctx context.Context, actor Actor, doctorID uuid.UUID) ([]AvailabilityOverride, error) {
	if actor.Role != RoleAdmin && !(actor.Role == RoleDoctor && actor.ID == doctorID) {
		return nil, ErrForbidden
	}
	overrides, err := s.repo.ListOverridesFrom(ctx, doctorID, Today())
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	if overrides == nil {
		overrides = []AvailabilityOverride{}
	}
	return overrides, nil
}

func (s *Service) DeleteOverride(ctx context.Context, actor Actor, id uuid.UUID) error {
	o, err := s.repo.GetOverrideByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOverrideNotFound) {
			return err
		}
		return fmt.Errorf("load override: %w", err)
	}
	if actor.Role != RoleAdmin && !(actor.Role == RoleDoctor && actor.ID == o.DoctorID) {
		// Same opacity rule as appointments: no existence leak.
		return ErrOverrideNotFound
	}

	if err := s.repo.DeleteOverride(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, actor.ID, nil, ActionOverrideDeleted, map[string]any{
		"override_id": id.String(),
		"doctor_id":   o.DoctorID.String(),
	})

	return nil
}

// Administrator configuration

func (s *Service) CreateWorkingPeriod(ctx context.Context, actor Actor, wp WorkingPeriod) (*WorkingPeriod, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if wp.Weekday < 1 || wp.Weekday > 7 {
		return nil, fmt.Errorf("%w: weekday must be 1..7 (ISO)", ErrInvalidInput)
	}
	if wp.Start >= wp.End {
		return nil, fmt.Errorf("%w: period start must precede end", ErrInvalidInput)
	}
	created, err := s.repo.CreateWorkingPeriod(ctx, wp)
	if err != nil {
		return nil, fmt.Errorf("create working period: %w", err)
	}
	return created, nil
}

func (s *Service) ListWorkingPeriods(ctx context.Context, locationID uuid.UUID, weekday int) ([]WorkingPeriod, error) {
	if weekday < 1 || weekday > 7 {
		return nil, fmt.Errorf("%w: weekday must be 1..7 (ISO)", ErrInvalidInput)
	}
	periods, err := s.repo.ListWorkingPeriods(ctx, locationID, weekday)
	if err != nil {
		return nil, fmt.Errorf("list working periods: %w", err)
	}
	if periods == nil {
		periods = []WorkingPeriod{}
	}
	return periods, nil
}

func (s *Service) SetDailyCap(ctx context.Context, actor Actor, cap DailyCap) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if cap.Weekday < 1 || cap.Weekday > 7 {
		return fmt.Errorf("%w: weekday must be 1..7 (ISO)", ErrInvalidInput)
	}
	if cap.MaxAppointments < 1 {
		return fmt.Errorf("%w: max appointments must be positive", ErrInvalidInput)
	}
	if err := s.repo.UpsertDailyCap(ctx, cap); err != nil {
		return fmt.Errorf("set daily cap: %w", err)
	}
	return nil
}

// ListAuditEntries returns the audit trail of one appointment, under the
// same visibility rules as the appointment itself.
func (s *Service) ListAuditEntries(ctx context.Context, actor Actor, appointmentID uuid.UUID) ([]AuditEntry, error) {
	if _, err := s.GetAppointment(ctx, appointmentID, actor); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListAuditEntries(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}

// Maintenance, called periodically by the worker.

// PurgeExpiredOverrides deletes overrides dated before today.
func (s *Service) PurgeExpiredOverrides(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOverridesBefore(ctx, Today())
	if err != nil {
		return 0, fmt.Errorf("purge expired overrides: %w", err)
	}
	return n, nil
}

// ExpireStaleAppointments flips scheduled appointments whose end passed
// more than the configured grace ago to no_show.
func (s *Service) ExpireStaleAppointments(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.NoShowGrace)

	stale, err := s.repo.FindStaleScheduled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale appointments: %w", err)
	}

	for _, appt := range stale {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusNoShow, appt.DoctorID)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).
					Str("appointment_id", appt.ID.String()).
					Msg("failed to mark stale appointment as no-show")
			}
			continue
		}
		s.logAudit(ctx, appt.DoctorID, &appt.ID, ActionAppointmentNoShow, map[string]any{
			"reason": "worker",
		})
	}

	return nil
}

func (s *Service) logAudit(ctx context.Context, actorID uuid.UUID, appointmentID *uuid.UUID, action string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("failed to marshal audit payload")
		data = nil
	}

	entry := AuditEntry{
		Action:        action,
		AppointmentID: appointmentID,
		ActorID:       actorID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertAuditEntry(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("failed to insert audit entry")
	}
}
