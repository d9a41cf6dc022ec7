package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/carelink/clinic-scheduling/internal/redis"
)

var errLockHeld = redisclient.ErrLockNotAcquired

// fakeRepo is an in-memory Repository used by the service tests.
type fakeRepo struct {
	doctors   map[uuid.UUID]*Doctor
	patients  map[uuid.UUID]*Patient
	locations map[uuid.UUID]*Location
	types     map[uuid.UUID]*AppointmentType
	periods   []WorkingPeriod
	overrides map[uuid.UUID]*AvailabilityOverride
	caps      map[string]*DailyCap
	appts     map[uuid.UUID]*Appointment
	audit     []AuditEntry

	// failReads makes every availability read fail, for the degrade path.
	failReads bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctors:   make(map[uuid.UUID]*Doctor),
		patients:  make(map[uuid.UUID]*Patient),
		locations: make(map[uuid.UUID]*Location),
		types:     make(map[uuid.UUID]*AppointmentType),
		overrides: make(map[uuid.UUID]*AvailabilityOverride),
		caps:      make(map[string]*DailyCap),
		appts:     make(map[uuid.UUID]*Appointment),
	}
}

var errReadFailure = errors.New("simulated read failure")

func capKey(doctorID, locationID uuid.UUID, weekday int) string {
	return fmt.Sprintf("%s:%s:%d", doctorID, locationID, weekday)
}

func (r *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := r.doctors[id]; ok {
		return d, nil
	}
	return nil, ErrDoctorNotFound
}

func (r *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := r.patients[id]; ok {
		return p, nil
	}
	return nil, ErrPatientNotFound
}

func (r *fakeRepo) GetLocationByID(_ context.Context, id uuid.UUID) (*Location, error) {
	if l, ok := r.locations[id]; ok {
		return l, nil
	}
	return nil, ErrLocationNotFound
}

func (r *fakeRepo) GetAppointmentTypeByID(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	if t, ok := r.types[id]; ok {
		return t, nil
	}
	return nil, ErrTypeNotFound
}

func (r *fakeRepo) UpdatePatientPhone(_ context.Context, id uuid.UUID, phone string) error {
	p, ok := r.patients[id]
	if !ok {
		return ErrPatientNotFound
	}
	p.Phone = &phone
	return nil
}

func (r *fakeRepo) ListWorkingPeriods(_ context.Context, locationID uuid.UUID, weekday int) ([]WorkingPeriod, error) {
	if r.failReads {
		return nil, errReadFailure
	}
	var out []WorkingPeriod
	for _, p := range r.periods {
		if p.LocationID == locationID && p.Weekday == weekday {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListBlockingAppointments(_ context.Context, doctorID, locationID uuid.UUID, date time.Time) ([]Appointment, error) {
	if r.failReads {
		return nil, errReadFailure
	}
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.LocationID == locationID && a.Date.Equal(date) && a.Status.Blocking() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListOverridesForDay(_ context.Context, doctorID uuid.UUID, locationID uuid.UUID, date time.Time) ([]AvailabilityOverride, error) {
	if r.failReads {
		return nil, errReadFailure
	}
	var out []AvailabilityOverride
	for _, o := range r.overrides {
		if o.DoctorID != doctorID || !o.Date.Equal(date) {
			continue
		}
		if o.LocationID != nil && *o.LocationID != locationID {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (r *fakeRepo) GetDailyCap(_ context.Context, doctorID, locationID uuid.UUID, weekday int) (*DailyCap, error) {
	if r.failReads {
		return nil, errReadFailure
	}
	if c, ok := r.caps[capKey(doctorID, locationID, weekday)]; ok {
		return c, nil
	}
	return nil, ErrNoDailyCap
}

func (r *fakeRepo) CreateWorkingPeriod(_ context.Context, wp WorkingPeriod) (*WorkingPeriod, error) {
	wp.ID = uuid.New()
	r.periods = append(r.periods, wp)
	return &wp, nil
}

func (r *fakeRepo) UpsertDailyCap(_ context.Context, cap DailyCap) error {
	c := cap
	r.caps[capKey(cap.DoctorID, cap.LocationID, cap.Weekday)] = &c
	return nil
}

func (r *fakeRepo) CreateOverride(_ context.Context, o AvailabilityOverride) (*AvailabilityOverride, error) {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	r.overrides[o.ID] = &o
	return &o, nil
}

func (r *fakeRepo) GetOverrideByID(_ context.Context, id uuid.UUID) (*AvailabilityOverride, error) {
	if o, ok := r.overrides[id]; ok {
		return o, nil
	}
	return nil, ErrOverrideNotFound
}

func (r *fakeRepo) ListOverridesFrom(_ context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityOverride, error) {
	var out []AvailabilityOverride
	for _, o := range r.overrides {
		if o.DoctorID == doctorID && !o.Date.Before(from) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteOverride(_ context.Context, id uuid.UUID) error {
	if _, ok := r.overrides[id]; !ok {
		return ErrOverrideNotFound
	}
	delete(r.overrides, id)
	return nil
}

func (r *fakeRepo) DeleteOverridesBefore(_ context.Context, date time.Time) (int64, error) {
	var n int64
	for id, o := range r.overrides {
		if o.Date.Before(date) {
			delete(r.overrides, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	appt.ID = uuid.New()
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	r.appts[appt.ID] = &appt
	return &appt, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := r.appts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.detail(a), nil
}

func (r *fakeRepo) detail(a *Appointment) *AppointmentDetail {
	return &AppointmentDetail{
		Appointment: *a,
		Patient:     r.patients[a.PatientID],
		Doctor:      r.doctors[a.DoctorID],
		Location:    r.locations[a.LocationID],
		Type:        r.types[a.TypeID],
	}
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, updatedBy uuid.UUID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedBy = updatedBy
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, date time.Time, start, end TimeOfDay, updatedBy uuid.UUID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok || !a.Status.Blocking() {
		return nil, ErrAppointmentNotFound
	}
	a.Date = date
	a.Start = start
	a.End = end
	a.Status = StatusScheduled
	a.RescheduleCount++
	a.UpdatedBy = updatedBy
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	var out []AppointmentDetail
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, *r.detail(a))
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	var out []AppointmentDetail
	for _, a := range r.appts {
		if a.DoctorID == doctorID {
			out = append(out, *r.detail(a))
		}
	}
	return out, nil
}

func (r *fakeRepo) FindStaleScheduled(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusScheduled && a.End.At(a.Date).Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertAuditEntry(_ context.Context, e AuditEntry) error {
	e.ID = int64(len(r.audit) + 1)
	r.audit = append(r.audit, e)
	return nil
}

func (r *fakeRepo) ListAuditEntries(_ context.Context, appointmentID uuid.UUID) ([]AuditEntry, error) {
	var out []AuditEntry
	for _, e := range r.audit {
		if e.AppointmentID != nil && *e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// passLocker runs the critical section immediately, contendedLocker
// simulates another holder.

type passLocker struct{}

func (passLocker) WithBookingLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type contendedLocker struct{}

func (contendedLocker) WithBookingLock(context.Context, string, func(ctx context.Context) error) error {
	return errLockHeld
}
