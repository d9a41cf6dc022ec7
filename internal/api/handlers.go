package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carelink/clinic-scheduling/internal/schedule"
)

// actorFromRequest reads the caller identity asserted by the upstream
// gateway. Authentication itself happens outside this service.
func actorFromRequest(r *http.Request) (schedule.Actor, error) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return schedule.Actor{}, errors.New("X-Actor-ID header must be a valid UUID")
	}

	role := schedule.ActorRole(r.Header.Get("X-Actor-Role"))
	switch role {
	case schedule.RolePatient, schedule.RoleDoctor, schedule.RoleAdmin:
	default:
		return schedule.Actor{}, errors.New("X-Actor-Role header must be patient, doctor or admin")
	}

	return schedule.Actor{ID: id, Role: role}, nil
}

func availabilityHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}
		locationID, err := uuid.Parse(r.URL.Query().Get("location_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")

		interval := 0
		if v := r.URL.Query().Get("interval"); v != "" {
			interval, err = strconv.Atoi(v)
			if err != nil || interval <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_interval", "interval must be a positive number of minutes")
				return
			}
		}

		result, err := svc.ComputeAvailableSlots(r.Context(), doctorID, locationID, dateStr, interval)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:   doctorID,
			LocationID: locationID,
			Date:       dateStr,
			Slots:      result.Slots,
			Count:      result.Count,
			Reason:     result.Reason,
		})
	}
}

func createAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID := actor.ID
		if req.PatientID != "" {
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}
		// Patients book for themselves; staff may book on a patient's behalf.
		if actor.Role == schedule.RolePatient && patientID != actor.ID {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only book for themselves")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}
		typeID, err := uuid.Parse(req.TypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "appointment_type_id must be a valid UUID")
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), schedule.BookingRequest{
			PatientID:    patientID,
			DoctorID:     doctorID,
			LocationID:   locationID,
			TypeID:       typeID,
			Date:         date,
			Start:        start,
			Reason:       req.Reason,
			ContactPhone: req.ContactPhone,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}

		var history schedule.AppointmentHistory
		switch {
		case r.URL.Query().Get("patient_id") != "":
			patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			history, err = svc.ListPatientAppointments(r.Context(), actor, patientID)
			if err != nil {
				handleServiceError(w, err)
				return
			}
		case r.URL.Query().Get("doctor_id") != "":
			doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			history, err = svc.ListDoctorAppointments(r.Context(), actor, doctorID)
			if err != nil {
				handleServiceError(w, err)
				return
			}
		default:
			// No explicit subject: list the actor's own history.
			switch actor.Role {
			case schedule.RolePatient:
				history, err = svc.ListPatientAppointments(r.Context(), actor, actor.ID)
			case schedule.RoleDoctor:
				history, err = svc.ListDoctorAppointments(r.Context(), actor, actor.ID)
			default:
				writeError(w, http.StatusBadRequest, "missing_subject", "admins must pass patient_id or doctor_id")
				return
			}
			if err != nil {
				handleServiceError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, historyResponse(history))
	}
}

// transitionHandler covers confirm, check-in, complete, cancel and no-show,
// which differ only in the service method invoked.
func transitionHandler(fn func(r *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r, id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, schedule.ErrInvalidInput
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			return nil, schedule.ErrInvalidInput
		}
		start, err := schedule.ParseTimeOfDay(req.Start)
		if err != nil {
			return nil, schedule.ErrInvalidInput
		}
		return svc.RescheduleAppointment(r.Context(), id, actor, date, start)
	})
}

func listAuditEntriesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		entries, err := svc.ListAuditEntries(r.Context(), actor, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AuditEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, AuditEntryResponse{
				ID:        e.ID,
				Action:    e.Action,
				ActorID:   e.ActorID,
				Payload:   e.Payload,
				CreatedAt: e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createOverrideHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req CreateOverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		o := schedule.AvailabilityOverride{
			DoctorID:    doctorID,
			Unavailable: req.Unavailable,
		}
		if o.Date, err = schedule.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		if req.LocationID != nil {
			locID, err := uuid.Parse(*req.LocationID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
				return
			}
			o.LocationID = &locID
		}
		if req.Start != nil {
			start, err := schedule.ParseTimeOfDay(*req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
				return
			}
			o.Start = &start
		}
		if req.End != nil {
			end, err := schedule.ParseTimeOfDay(*req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
				return
			}
			o.End = &end
		}

		created, err := svc.CreateOverride(r.Context(), actor, o)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, overrideResponse(created))
	}
}

func listOverridesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		overrides, err := svc.ListOverrides(r.Context(), actor, doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]OverrideResponse, 0, len(overrides))
		for i := range overrides {
			resp = append(resp, overrideResponse(&overrides[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteOverrideHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_override_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteOverride(r.Context(), actor, id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createWorkingPeriodHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		locationID, err := uuid.Parse(chi.URLParam(r, "locationID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "locationID must be a valid UUID")
			return
		}

		var req CreateWorkingPeriodRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
		end, err := schedule.ParseTimeOfDay(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}

		created, err := svc.CreateWorkingPeriod(r.Context(), actor, schedule.WorkingPeriod{
			LocationID: locationID,
			Weekday:    req.Weekday,
			Start:      start,
			End:        end,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, WorkingPeriodResponse{
			ID:         created.ID,
			LocationID: created.LocationID,
			Weekday:    created.Weekday,
			Start:      created.Start,
			End:        created.End,
		})
	}
}

func listWorkingPeriodsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locationID, err := uuid.Parse(chi.URLParam(r, "locationID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "locationID must be a valid UUID")
			return
		}
		weekday, err := strconv.Atoi(r.URL.Query().Get("weekday"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be a number 1..7 (ISO)")
			return
		}

		periods, err := svc.ListWorkingPeriods(r.Context(), locationID, weekday)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]WorkingPeriodResponse, 0, len(periods))
		for _, p := range periods {
			resp = append(resp, WorkingPeriodResponse{
				ID:         p.ID,
				LocationID: p.LocationID,
				Weekday:    p.Weekday,
				Start:      p.Start,
				End:        p.End,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setDailyCapHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_actor", err.Error())
			return
		}
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req SetDailyCapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}

		err = svc.SetDailyCap(r.Context(), actor, schedule.DailyCap{
			DoctorID:        doctorID,
			LocationID:      locationID,
			Weekday:         req.Weekday,
			MaxAppointments: req.MaxAppointments,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, schedule.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, schedule.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrLocationNotFound):
		writeError(w, http.StatusNotFound, "location_not_found", err.Error())
	case errors.Is(err, schedule.ErrTypeNotFound):
		writeError(w, http.StatusNotFound, "appointment_type_not_found", err.Error())
	case errors.Is(err, schedule.ErrOverrideNotFound):
		writeError(w, http.StatusNotFound, "override_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, schedule.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "daily_cap_reached", err.Error())
	case errors.Is(err, schedule.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, schedule.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
