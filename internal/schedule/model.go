package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCheckedIn   AppointmentStatus = "checked_in"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// BlockingStatuses is the authoritative set of statuses that occupy a slot.
// The same set drives slot subtraction, daily-cap counting and the overlap
// re-check at booking time.
var BlockingStatuses = []AppointmentStatus{
	StatusPending,
	StatusScheduled,
	StatusConfirmed,
	StatusCheckedIn,
	StatusRescheduled,
}

// Blocking reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Blocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the appointment's lifecycle.
// Terminal appointments are always categorized as past, regardless of date.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

type ActorRole string

const (
	RolePatient ActorRole = "patient"
	RoleDoctor  ActorRole = "doctor"
	RoleAdmin   ActorRole = "admin"
)

// Actor is the authenticated caller, as asserted by the upstream gateway.
type Actor struct {
	ID   uuid.UUID
	Role ActorRole
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Location struct {
	ID        uuid.UUID
	Name      string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentType carries the default duration used to compute an
// appointment's end time from its chosen start slot.
type AppointmentType struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
}

// WorkingPeriod is a recurring weekly availability window for a location.
// A location may have several per weekday (split morning/afternoon shifts).
type WorkingPeriod struct {
	ID         uuid.UUID
	LocationID uuid.UUID
	Weekday    int // ISO 8601, Monday=1 .. Sunday=7
	Start      TimeOfDay
	End        TimeOfDay
}

// AvailabilityOverride is a one-off exception to the standing working hours.
// A nil Start/End with Unavailable=true blocks the doctor's entire day; a
// populated range blocks only that sub-interval. A nil LocationID applies at
// every location.
type AvailabilityOverride struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	LocationID  *uuid.UUID
	Date        time.Time
	Start       *TimeOfDay
	End         *TimeOfDay
	Unavailable bool
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}

// FullDay reports whether the override blocks the whole day.
func (o AvailabilityOverride) FullDay() bool {
	return o.Unavailable && o.Start == nil && o.End == nil
}

// DailyCap is a per-weekday ceiling on blocking appointments for a doctor
// at a location. Absence of a row means no cap.
type DailyCap struct {
	DoctorID        uuid.UUID
	LocationID      uuid.UUID
	Weekday         int // ISO 8601
	MaxAppointments int
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	LocationID      uuid.UUID
	TypeID          uuid.UUID
	Date            time.Time
	Start           TimeOfDay
	End             TimeOfDay
	Status          AppointmentStatus
	Reason          string
	RescheduleCount int
	CreatedBy       uuid.UUID
	UpdatedBy       uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppointmentDetail is an appointment hydrated with its related entities.
type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Doctor   *Doctor
	Location *Location
	Type     *AppointmentType
}

// AppointmentHistory partitions a user's appointments for display.
// Upcoming holds non-terminal appointments dated today or later; everything
// else, including future-dated canceled ones, lands in Past.
type AppointmentHistory struct {
	Upcoming []AppointmentDetail
	Past     []AppointmentDetail
}

// AuditEntry is an append-only record of a scheduling mutation.
type AuditEntry struct {
	ID            int64
	Action        string
	AppointmentID *uuid.UUID
	ActorID       uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
