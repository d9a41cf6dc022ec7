package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/clinic-scheduling/internal/schedule"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID   uuid.UUID            `json:"doctor_id"`
	LocationID uuid.UUID            `json:"location_id"`
	Date       string               `json:"date"`
	Slots      []schedule.TimeOfDay `json:"slots"`
	Count      int                  `json:"count"`
	Reason     string               `json:"reason,omitempty"`
}

type CreateAppointmentRequest struct {
	PatientID    string `json:"patient_id,omitempty"` // defaults to the acting patient
	DoctorID     string `json:"doctor_id"`
	LocationID   string `json:"location_id"`
	TypeID       string `json:"appointment_type_id"`
	Date         string `json:"date"`  // YYYY-MM-DD
	Start        string `json:"start"` // HH:MM
	Reason       string `json:"reason,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

type RescheduleRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
}

type AppointmentResponse struct {
	ID              uuid.UUID           `json:"id"`
	PatientID       uuid.UUID           `json:"patient_id"`
	DoctorID        uuid.UUID           `json:"doctor_id"`
	LocationID      uuid.UUID           `json:"location_id"`
	TypeID          uuid.UUID           `json:"appointment_type_id"`
	Date            string              `json:"date"`
	Start           schedule.TimeOfDay  `json:"start"`
	End             schedule.TimeOfDay  `json:"end"`
	Status          string              `json:"status"`
	Reason          string              `json:"reason,omitempty"`
	RescheduleCount int                 `json:"reschedule_count"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName     string `json:"patient_name,omitempty"`
	DoctorName      string `json:"doctor_name,omitempty"`
	LocationName    string `json:"location_name,omitempty"`
	TypeName        string `json:"type_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type AppointmentHistoryResponse struct {
	Upcoming []AppointmentDetailResponse `json:"upcoming"`
	Past     []AppointmentDetailResponse `json:"past"`
}

type CreateOverrideRequest struct {
	LocationID  *string `json:"location_id,omitempty"` // nil applies at every location
	Date        string  `json:"date"`
	Start       *string `json:"start,omitempty"` // nil start+end with unavailable=true blocks the whole day
	End         *string `json:"end,omitempty"`
	Unavailable bool    `json:"unavailable"`
}

type OverrideResponse struct {
	ID          uuid.UUID           `json:"id"`
	DoctorID    uuid.UUID           `json:"doctor_id"`
	LocationID  *uuid.UUID          `json:"location_id,omitempty"`
	Date        string              `json:"date"`
	Start       *schedule.TimeOfDay `json:"start,omitempty"`
	End         *schedule.TimeOfDay `json:"end,omitempty"`
	Unavailable bool                `json:"unavailable"`
}

type CreateWorkingPeriodRequest struct {
	Weekday int    `json:"weekday"` // ISO 8601, Monday=1
	Start   string `json:"start"`
	End     string `json:"end"`
}

type WorkingPeriodResponse struct {
	ID         uuid.UUID          `json:"id"`
	LocationID uuid.UUID          `json:"location_id"`
	Weekday    int                `json:"weekday"`
	Start      schedule.TimeOfDay `json:"start"`
	End        schedule.TimeOfDay `json:"end"`
}

type SetDailyCapRequest struct {
	LocationID      string `json:"location_id"`
	Weekday         int    `json:"weekday"`
	MaxAppointments int    `json:"max_appointments"`
}

type AuditEntryResponse struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	ActorID   uuid.UUID       `json:"actor_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func appointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		LocationID:      a.LocationID,
		TypeID:          a.TypeID,
		Date:            a.Date.Format(schedule.DateFormat),
		Start:           a.Start,
		End:             a.End,
		Status:          string(a.Status),
		Reason:          a.Reason,
		RescheduleCount: a.RescheduleCount,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func appointmentDetailResponse(d *schedule.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: appointmentResponse(&d.Appointment),
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	if d.Doctor != nil {
		resp.DoctorName = d.Doctor.Name
	}
	if d.Location != nil {
		resp.LocationName = d.Location.Name
	}
	if d.Type != nil {
		resp.TypeName = d.Type.Name
		resp.DurationMinutes = d.Type.DurationMinutes
	}
	return resp
}

func historyResponse(h schedule.AppointmentHistory) AppointmentHistoryResponse {
	resp := AppointmentHistoryResponse{
		Upcoming: make([]AppointmentDetailResponse, 0, len(h.Upcoming)),
		Past:     make([]AppointmentDetailResponse, 0, len(h.Past)),
	}
	for i := range h.Upcoming {
		resp.Upcoming = append(resp.Upcoming, appointmentDetailResponse(&h.Upcoming[i]))
	}
	for i := range h.Past {
		resp.Past = append(resp.Past, appointmentDetailResponse(&h.Past[i]))
	}
	return resp
}

func overrideResponse(o *schedule.AvailabilityOverride) OverrideResponse {
	return OverrideResponse{
		ID:          o.ID,
		DoctorID:    o.DoctorID,
		LocationID:  o.LocationID,
		Date:        o.Date.Format(schedule.DateFormat),
		Start:       o.Start,
		End:         o.End,
		Unavailable: o.Unavailable,
	}
}
