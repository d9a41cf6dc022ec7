package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/clinic-scheduling/internal/config"
)

type fixture struct {
	repo *fakeRepo
	svc  *Service

	doctorID   uuid.UUID
	patientID  uuid.UUID
	locationID uuid.UUID
	typeID     uuid.UUID

	date    time.Time // one week out, with working hours 09:00-12:00
	dateStr string

	patient Actor
	doctor  Actor
	admin   Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:       newFakeRepo(),
		doctorID:   uuid.New(),
		patientID:  uuid.New(),
		locationID: uuid.New(),
		typeID:     uuid.New(),
		date:       Today().AddDate(0, 0, 7),
	}
	f.dateStr = f.date.Format(DateFormat)
	f.patient = Actor{ID: f.patientID, Role: RolePatient}
	f.doctor = Actor{ID: f.doctorID, Role: RoleDoctor}
	f.admin = Actor{ID: uuid.New(), Role: RoleAdmin}

	f.repo.doctors[f.doctorID] = &Doctor{ID: f.doctorID, Name: "Dr. Osei"}
	f.repo.patients[f.patientID] = &Patient{ID: f.patientID, Name: "Maya Lindgren"}
	f.repo.locations[f.locationID] = &Location{ID: f.locationID, Name: "Riverside Clinic"}
	f.repo.types[f.typeID] = &AppointmentType{ID: f.typeID, Name: "General Consultation", DurationMinutes: 30}

	f.repo.periods = append(f.repo.periods, WorkingPeriod{
		ID:         uuid.New(),
		LocationID: f.locationID,
		Weekday:    ISOWeekday(f.date),
		Start:      tod(t, "09:00"),
		End:        tod(t, "12:00"),
	})

	cfg := config.Config{SlotIntervalMins: 30, NoShowGrace: time.Hour}
	f.svc = NewService(f.repo, passLocker{}, cfg, zerolog.Nop())
	return f
}

func (f *fixture) addAppointment(t *testing.T, date time.Time, start, end string, status AppointmentStatus) *Appointment {
	t.Helper()
	appt, err := f.repo.CreateAppointment(context.Background(), Appointment{
		PatientID:  f.patientID,
		DoctorID:   f.doctorID,
		LocationID: f.locationID,
		TypeID:     f.typeID,
		Date:       date,
		Start:      tod(t, start),
		End:        tod(t, end),
		Status:     status,
		CreatedBy:  f.patientID,
		UpdatedBy:  f.patientID,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) booking(start string, t *testing.T) BookingRequest {
	t.Helper()
	return BookingRequest{
		PatientID:  f.patientID,
		DoctorID:   f.doctorID,
		LocationID: f.locationID,
		TypeID:     f.typeID,
		Date:       f.date,
		Start:      tod(t, start),
		Reason:     "persistent cough",
	}
}

func TestComputeAvailableSlots_InvalidDate(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ComputeAvailableSlots(context.Background(), f.doctorID, f.locationID, "not-a-date", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, res.Slots)
}

func TestComputeAvailableSlots_PastDate(t *testing.T) {
	f := newFixture(t)
	yesterday := Today().AddDate(0, 0, -1).Format(DateFormat)

	res, err := f.svc.ComputeAvailableSlots(context.Background(), f.doctorID, f.locationID, yesterday, 0)
	assert.ErrorIs(t, err, ErrPastDate)
	assert.Empty(t, res.Slots)
}

func TestComputeAvailableSlots_FullDay(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ComputeAvailableSlots(context.Background(), f.doctorID, f.locationID, f.dateStr, 0)
	require.NoError(t, err)

	// 09:00-12:00 at 30-minute intervals.
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, slotStrings(res.Slots))
	assert.Equal(t, 6, res.Count)
}

func TestComputeAvailableSlots_LookupFailureDegradesToEmpty(t *testing.T) {
	f := newFixture(t)
	f.repo.failReads = true

	res, err := f.svc.ComputeAvailableSlots(context.Background(), f.doctorID, f.locationID, f.dateStr, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
	assert.Equal(t, ReasonLookupFailed, res.Reason)
}

func TestCreateAppointment_ThenGet(t *testing.T) {
	f := newFixture(t)

	req := f.booking("09:30", t)
	req.ContactPhone = "+45 31 12 34 56"

	appt, err := f.svc.CreateAppointment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "09:30", appt.Start.String())
	assert.Equal(t, "10:00", appt.End.String()) // start + 30-minute type duration
	assert.Equal(t, 0, appt.RescheduleCount)
	assert.Equal(t, f.patientID, appt.CreatedBy)

	got, err := f.svc.GetAppointment(context.Background(), appt.ID, f.patient)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
	assert.Equal(t, "Dr. Osei", got.Doctor.Name)

	// Phone side update landed.
	require.NotNil(t, f.repo.patients[f.patientID].Phone)
	assert.Equal(t, req.ContactPhone, *f.repo.patients[f.patientID].Phone)

	// Booking was audited.
	entries, err := f.svc.ListAuditEntries(context.Background(), f.patient, appt.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionAppointmentCreated, entries[0].Action)
}

func TestCreateAppointment_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(t, f.date, "09:30", "10:00", StatusConfirmed)

	_, err := f.svc.CreateAppointment(context.Background(), f.booking("09:30", t))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// The adjacent slot is still bookable.
	_, err = f.svc.CreateAppointment(context.Background(), f.booking("10:00", t))
	assert.NoError(t, err)
}

func TestCreateAppointment_SlotFreedByCancellation(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(t, f.date, "09:30", "10:00", StatusCanceled)

	_, err := f.svc.CreateAppointment(context.Background(), f.booking("09:30", t))
	assert.NoError(t, err)
}

func TestCreateAppointment_CapReached(t *testing.T) {
	f := newFixture(t)
	f.repo.caps[capKey(f.doctorID, f.locationID, ISOWeekday(f.date))] = &DailyCap{
		DoctorID:        f.doctorID,
		LocationID:      f.locationID,
		Weekday:         ISOWeekday(f.date),
		MaxAppointments: 1,
	}
	f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	_, err := f.svc.CreateAppointment(context.Background(), f.booking("10:00", t))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCreateAppointment_FullDayOverride(t *testing.T) {
	f := newFixture(t)
	f.repo.overrides[uuid.New()] = &AvailabilityOverride{
		ID:          uuid.New(),
		DoctorID:    f.doctorID,
		Date:        f.date,
		Unavailable: true,
	}

	_, err := f.svc.CreateAppointment(context.Background(), f.booking("09:00", t))
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestCreateAppointment_PastDate(t *testing.T) {
	f := newFixture(t)
	req := f.booking("09:00", t)
	req.Date = Today().AddDate(0, 0, -1)

	_, err := f.svc.CreateAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestCreateAppointment_MissingFields(t *testing.T) {
	f := newFixture(t)
	req := f.booking("09:00", t)
	req.TypeID = uuid.Nil

	_, err := f.svc.CreateAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateAppointment_UnknownPatient(t *testing.T) {
	f := newFixture(t)
	req := f.booking("09:00", t)
	req.PatientID = uuid.New()

	_, err := f.svc.CreateAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateAppointment_LockContended(t *testing.T) {
	f := newFixture(t)
	cfg := config.Config{SlotIntervalMins: 30, NoShowGrace: time.Hour}
	contended := NewService(f.repo, contendedLocker{}, cfg, zerolog.Nop())

	_, err := contended.CreateAppointment(context.Background(), f.booking("09:00", t))
	assert.ErrorIs(t, err, ErrSlotContended)
}

func TestGetAppointment_VisibilityScoping(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	// Unrelated patient and unrelated doctor both get not-found, not forbidden.
	_, err := f.svc.GetAppointment(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.GetAppointment(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RoleDoctor})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	for _, actor := range []Actor{f.patient, f.doctor, f.admin} {
		got, err := f.svc.GetAppointment(context.Background(), appt.ID, actor)
		require.NoError(t, err)
		assert.Equal(t, appt.ID, got.ID)
	}
}

func TestListPatientAppointments_Partition(t *testing.T) {
	f := newFixture(t)
	today := Today()

	confirmedToday := f.addAppointment(t, today, "09:00", "09:30", StatusConfirmed)
	completedYesterday := f.addAppointment(t, today.AddDate(0, 0, -1), "09:00", "09:30", StatusCompleted)
	canceledTomorrow := f.addAppointment(t, today.AddDate(0, 0, 1), "09:00", "09:30", StatusCanceled)

	history, err := f.svc.ListPatientAppointments(context.Background(), f.patient, f.patientID)
	require.NoError(t, err)

	require.Len(t, history.Upcoming, 1)
	assert.Equal(t, confirmedToday.ID, history.Upcoming[0].ID)

	// Terminal status forces past, even for a future date.
	require.Len(t, history.Past, 2)
	pastIDs := []uuid.UUID{history.Past[0].ID, history.Past[1].ID}
	assert.Contains(t, pastIDs, completedYesterday.ID)
	assert.Contains(t, pastIDs, canceledTomorrow.ID)
}

func TestListPatientAppointments_Authorization(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListPatientAppointments(context.Background(), Actor{ID: uuid.New(), Role: RolePatient}, f.patientID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ListPatientAppointments(context.Background(), f.doctor, f.patientID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.ListPatientAppointments(context.Background(), f.admin, f.patientID)
	assert.NoError(t, err)
}

func TestListDoctorAppointments(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	history, err := f.svc.ListDoctorAppointments(context.Background(), f.doctor, f.doctorID)
	require.NoError(t, err)
	assert.Len(t, history.Upcoming, 1)

	_, err = f.svc.ListDoctorAppointments(context.Background(), f.patient, f.doctorID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	// Patients cannot confirm.
	_, err := f.svc.ConfirmAppointment(ctx, appt.ID, f.patient)
	assert.ErrorIs(t, err, ErrForbidden)

	confirmed, err := f.svc.ConfirmAppointment(ctx, appt.ID, f.doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Double confirm is an illegal transition.
	_, err = f.svc.ConfirmAppointment(ctx, appt.ID, f.doctor)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	checkedIn, err := f.svc.CheckInAppointment(ctx, appt.ID, f.doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checkedIn.Status)

	completed, err := f.svc.CompleteAppointment(ctx, appt.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Completed appointments cannot be canceled.
	_, err = f.svc.CancelAppointment(ctx, appt.ID, f.patient)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelAppointment_ByPatient(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	canceled, err := f.svc.CancelAppointment(context.Background(), appt.ID, f.patient)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	entries, err := f.svc.ListAuditEntries(context.Background(), f.patient, appt.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionAppointmentCanceled, entries[0].Action)
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusConfirmed)

	_, err := f.svc.MarkNoShow(context.Background(), appt.ID, f.patient)
	assert.ErrorIs(t, err, ErrForbidden)

	marked, err := f.svc.MarkNoShow(context.Background(), appt.ID, f.doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)
}

func TestRescheduleAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	moved, err := f.svc.RescheduleAppointment(context.Background(), appt.ID, f.patient, f.date, tod(t, "10:00"))
	require.NoError(t, err)

	assert.Equal(t, "10:00", moved.Start.String())
	assert.Equal(t, "10:30", moved.End.String())
	assert.Equal(t, StatusScheduled, moved.Status)
	assert.Equal(t, 1, moved.RescheduleCount)
}

func TestRescheduleAppointment_DoesNotConflictWithItself(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "10:00", StatusScheduled)

	// Shift by half a slot into its own current interval.
	moved, err := f.svc.RescheduleAppointment(context.Background(), appt.ID, f.patient, f.date, tod(t, "09:30"))
	require.NoError(t, err)
	assert.Equal(t, "09:30", moved.Start.String())
	assert.Equal(t, "10:30", moved.End.String())
}

func TestRescheduleAppointment_TargetTaken(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)
	f.addAppointment(t, f.date, "10:00", "10:30", StatusConfirmed)

	_, err := f.svc.RescheduleAppointment(context.Background(), appt.ID, f.patient, f.date, tod(t, "10:00"))
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestRescheduleAppointment_TerminalStatus(t *testing.T) {
	f := newFixture(t)
	appt := f.addAppointment(t, f.date, "09:00", "09:30", StatusCompleted)

	_, err := f.svc.RescheduleAppointment(context.Background(), appt.ID, f.admin, f.date, tod(t, "10:00"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreateOverride_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Doctors can only create their own overrides.
	_, err := f.svc.CreateOverride(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, AvailabilityOverride{
		DoctorID: f.doctorID, Date: f.date, Unavailable: true,
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateOverride(ctx, f.doctor, AvailabilityOverride{
		DoctorID: f.doctorID, Date: Today().AddDate(0, 0, -1), Unavailable: true,
	})
	assert.ErrorIs(t, err, ErrPastDate)

	// Half-specified range.
	start := tod(t, "10:00")
	_, err = f.svc.CreateOverride(ctx, f.doctor, AvailabilityOverride{
		DoctorID: f.doctorID, Date: f.date, Start: &start, Unavailable: true,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	created, err := f.svc.CreateOverride(ctx, f.doctor, AvailabilityOverride{
		DoctorID: f.doctorID, Date: f.date, Unavailable: true,
	})
	require.NoError(t, err)
	assert.True(t, created.FullDay())

	// The override now blanks the day.
	res, err := f.svc.ComputeAvailableSlots(ctx, f.doctorID, f.locationID, f.dateStr, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Slots)
	assert.Equal(t, ReasonDoctorUnavailable, res.Reason)
}

func TestDeleteOverride_Opacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateOverride(ctx, f.doctor, AvailabilityOverride{
		DoctorID: f.doctorID, Date: f.date, Unavailable: true,
	})
	require.NoError(t, err)

	// Another doctor cannot even learn the override exists.
	err = f.svc.DeleteOverride(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, created.ID)
	assert.ErrorIs(t, err, ErrOverrideNotFound)

	require.NoError(t, f.svc.DeleteOverride(ctx, f.doctor, created.ID))
	err = f.svc.DeleteOverride(ctx, f.doctor, created.ID)
	assert.ErrorIs(t, err, ErrOverrideNotFound)
}

func TestAdminConfiguration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateWorkingPeriod(ctx, f.doctor, WorkingPeriod{
		LocationID: f.locationID, Weekday: 2, Start: tod(t, "09:00"), End: tod(t, "12:00"),
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateWorkingPeriod(ctx, f.admin, WorkingPeriod{
		LocationID: f.locationID, Weekday: 8, Start: tod(t, "09:00"), End: tod(t, "12:00"),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	created, err := f.svc.CreateWorkingPeriod(ctx, f.admin, WorkingPeriod{
		LocationID: f.locationID, Weekday: 2, Start: tod(t, "09:00"), End: tod(t, "12:00"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	err = f.svc.SetDailyCap(ctx, f.admin, DailyCap{
		DoctorID: f.doctorID, LocationID: f.locationID, Weekday: 2, MaxAppointments: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.SetDailyCap(ctx, f.admin, DailyCap{
		DoctorID: f.doctorID, LocationID: f.locationID, Weekday: 2, MaxAppointments: 10,
	})
	assert.NoError(t, err)
}

func TestPurgeExpiredOverrides(t *testing.T) {
	f := newFixture(t)

	stale := &AvailabilityOverride{ID: uuid.New(), DoctorID: f.doctorID, Date: Today().AddDate(0, 0, -2), Unavailable: true}
	fresh := &AvailabilityOverride{ID: uuid.New(), DoctorID: f.doctorID, Date: f.date, Unavailable: true}
	f.repo.overrides[stale.ID] = stale
	f.repo.overrides[fresh.ID] = fresh

	n, err := f.svc.PurgeExpiredOverrides(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, f.repo.overrides, stale.ID)
	assert.Contains(t, f.repo.overrides, fresh.ID)
}

func TestExpireStaleAppointments(t *testing.T) {
	f := newFixture(t)

	stale := f.addAppointment(t, Today().AddDate(0, 0, -2), "09:00", "09:30", StatusScheduled)
	confirmed := f.addAppointment(t, Today().AddDate(0, 0, -2), "10:00", "10:30", StatusConfirmed)
	future := f.addAppointment(t, f.date, "09:00", "09:30", StatusScheduled)

	require.NoError(t, f.svc.ExpireStaleAppointments(context.Background()))

	assert.Equal(t, StatusNoShow, f.repo.appts[stale.ID].Status)
	// Only unacknowledged scheduled rows are swept.
	assert.Equal(t, StatusConfirmed, f.repo.appts[confirmed.ID].Status)
	assert.Equal(t, StatusScheduled, f.repo.appts[future.ID].Status)
}
