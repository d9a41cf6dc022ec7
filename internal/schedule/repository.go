package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrTypeNotFound        = errors.New("appointment type not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrOverrideNotFound    = errors.New("availability override not found")
	ErrNoDailyCap          = errors.New("no daily cap configured")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error)
	GetAppointmentTypeByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	UpdatePatientPhone(ctx context.Context, id uuid.UUID, phone string) error

	// Availability inputs
	ListWorkingPeriods(ctx context.Context, locationID uuid.UUID, weekday int) ([]WorkingPeriod, error)
	ListBlockingAppointments(ctx context.Context, doctorID, locationID uuid.UUID, date time.Time) ([]Appointment, error)
	ListOverridesForDay(ctx context.Context, doctorID uuid.UUID, locationID uuid.UUID, date time.Time) ([]AvailabilityOverride, error)
	GetDailyCap(ctx context.Context, doctorID, locationID uuid.UUID, weekday int) (*DailyCap, error)

	// Administrator configuration
	CreateWorkingPeriod(ctx context.Context, wp WorkingPeriod) (*WorkingPeriod, error)
	UpsertDailyCap(ctx context.Context, cap DailyCap) error

	// Override lifecycle
	CreateOverride(ctx context.Context, o AvailabilityOverride) (*AvailabilityOverride, error)
	GetOverrideByID(ctx context.Context, id uuid.UUID) (*AvailabilityOverride, error)
	ListOverridesFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityOverride, error)
	DeleteOverride(ctx context.Context, id uuid.UUID) error
	DeleteOverridesBefore(ctx context.Context, date time.Time) (int64, error)

	// Appointment lifecycle
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, updatedBy uuid.UUID) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, start, end TimeOfDay, updatedBy uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error)

	// Maintenance worker
	FindStaleScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Audit logging
	InsertAuditEntry(ctx context.Context, e AuditEntry) error
	ListAuditEntries(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error)
}
