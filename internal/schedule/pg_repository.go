package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Time-of-day normalization. TIME columns come back as pgtype.Time
// (microseconds since midnight); everything above the repository sees
// only TimeOfDay. These two helpers are the entire conversion surface.

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPgTimePtr(t pgtype.Time) *TimeOfDay {
	if !t.Valid {
		return nil
	}
	v := fromPgTime(t)
	return &v
}

func toPgTimePtr(t *TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return toPgTime(*t)
}

func blockingStatusStrings() []string {
	out := make([]string, len(BlockingStatuses))
	for i, s := range BlockingStatuses {
		out[i] = string(s)
	}
	return out
}

// Scan helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return &l, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.LocationID,
		&a.TypeID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&a.Reason,
		&a.RescheduleCount,
		&a.CreatedBy,
		&a.UpdatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = Midnight(a.Date)
	a.Start = fromPgTime(start)
	a.End = fromPgTime(end)
	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, location_id, appointment_type_id,
	date, start_time, end_time, status, reason, reschedule_count,
	created_by, updated_by, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM locations
		WHERE id = $1
	`, id)
	return scanLocation(row)
}

func (r *PgRepository) GetAppointmentTypeByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	var t AppointmentType
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, default_duration_minutes
		FROM appointment_types
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) UpdatePatientPhone(ctx context.Context, id uuid.UUID, phone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET phone = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, phone)
	if err != nil {
		return fmt.Errorf("update patient phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) ListWorkingPeriods(ctx context.Context, locationID uuid.UUID, weekday int) ([]WorkingPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, location_id, iso_weekday, start_time, end_time
		FROM working_periods
		WHERE location_id = $1 AND iso_weekday = $2
		ORDER BY start_time
	`, locationID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkingPeriod
	for rows.Next() {
		var wp WorkingPeriod
		var start, end pgtype.Time
		if err := rows.Scan(&wp.ID, &wp.LocationID, &wp.Weekday, &start, &end); err != nil {
			return nil, err
		}
		wp.Start = fromPgTime(start)
		wp.End = fromPgTime(end)
		result = append(result, wp)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListBlockingAppointments(ctx context.Context, doctorID, locationID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND location_id = $2 AND date = $3
		  AND status = ANY($4)
	`, doctorID, locationID, date, blockingStatusStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListOverridesForDay(ctx context.Context, doctorID uuid.UUID, locationID uuid.UUID, date time.Time) ([]AvailabilityOverride, error) {
	// Overrides with a NULL location apply everywhere.
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, location_id, date, start_time, end_time, is_unavailable, created_by, created_at
		FROM availability_overrides
		WHERE doctor_id = $1 AND date = $2
		  AND (location_id IS NULL OR location_id = $3)
	`, doctorID, date, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOverrides(rows)
}

func collectOverrides(rows pgx.Rows) ([]AvailabilityOverride, error) {
	var result []AvailabilityOverride
	for rows.Next() {
		var o AvailabilityOverride
		var start, end pgtype.Time
		err := rows.Scan(&o.ID, &o.DoctorID, &o.LocationID, &o.Date, &start, &end, &o.Unavailable, &o.CreatedBy, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		o.Date = Midnight(o.Date)
		o.Start = fromPgTimePtr(start)
		o.End = fromPgTimePtr(end)
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetDailyCap(ctx context.Context, doctorID, locationID uuid.UUID, weekday int) (*DailyCap, error) {
	var c DailyCap
	err := r.pool.QueryRow(ctx, `
		SELECT doctor_id, location_id, iso_weekday, max_appointments
		FROM daily_caps
		WHERE doctor_id = $1 AND location_id = $2 AND iso_weekday = $3
	`, doctorID, locationID, weekday).Scan(&c.DoctorID, &c.LocationID, &c.Weekday, &c.MaxAppointments)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDailyCap
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) CreateWorkingPeriod(ctx context.Context, wp WorkingPeriod) (*WorkingPeriod, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO working_periods (id, location_id, iso_weekday, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
	`, id, wp.LocationID, wp.Weekday, toPgTime(wp.Start), toPgTime(wp.End))
	if err != nil {
		return nil, fmt.Errorf("insert working period: %w", err)
	}
	wp.ID = id
	return &wp, nil
}

func (r *PgRepository) UpsertDailyCap(ctx context.Context, cap DailyCap) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_caps (doctor_id, location_id, iso_weekday, max_appointments)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doctor_id, location_id, iso_weekday)
		DO UPDATE SET max_appointments = EXCLUDED.max_appointments
	`, cap.DoctorID, cap.LocationID, cap.Weekday, cap.MaxAppointments)
	if err != nil {
		return fmt.Errorf("upsert daily cap: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateOverride(ctx context.Context, o AvailabilityOverride) (*AvailabilityOverride, error) {
	id := uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_overrides
			(id, doctor_id, location_id, date, start_time, end_time, is_unavailable, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`, id, o.DoctorID, o.LocationID, o.Date, toPgTimePtr(o.Start), toPgTimePtr(o.End), o.Unavailable, o.CreatedBy)

	if err := row.Scan(&o.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert override: %w", err)
	}
	o.ID = id
	return &o, nil
}

func (r *PgRepository) GetOverrideByID(ctx context.Context, id uuid.UUID) (*AvailabilityOverride, error) {
	var o AvailabilityOverride
	var start, end pgtype.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, location_id, date, start_time, end_time, is_unavailable, created_by, created_at
		FROM availability_overrides
		WHERE id = $1
	`, id).Scan(&o.ID, &o.DoctorID, &o.LocationID, &o.Date, &start, &end, &o.Unavailable, &o.CreatedBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	o.Date = Midnight(o.Date)
	o.Start = fromPgTimePtr(start)
	o.End = fromPgTimePtr(end)
	return &o, nil
}

func (r *PgRepository) ListOverridesFrom(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AvailabilityOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, location_id, date, start_time, end_time, is_unavailable, created_by, created_at
		FROM availability_overrides
		WHERE doctor_id = $1 AND date >= $2
		ORDER BY date, start_time NULLS FIRST
	`, doctorID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOverrides(rows)
}

func (r *PgRepository) DeleteOverride(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func (r *PgRepository) DeleteOverridesBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_overrides WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("purge overrides: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	id := uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, location_id, appointment_type_id,
			 date, start_time, end_time, status, reason, reschedule_count,
			 created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, appt.LocationID, appt.TypeID,
		appt.Date, toPgTime(appt.Start), toPgTime(appt.End), appt.Status, appt.Reason,
		appt.CreatedBy)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, appt)
}

func (r *PgRepository) hydrate(ctx context.Context, appt *Appointment) (*AppointmentDetail, error) {
	detail := AppointmentDetail{Appointment: *appt}

	var err error
	if detail.Patient, err = r.GetPatientByID(ctx, appt.PatientID); err != nil {
		return nil, fmt.Errorf("hydrate patient: %w", err)
	}
	if detail.Doctor, err = r.GetDoctorByID(ctx, appt.DoctorID); err != nil {
		return nil, fmt.Errorf("hydrate doctor: %w", err)
	}
	if detail.Location, err = r.GetLocationByID(ctx, appt.LocationID); err != nil {
		return nil, fmt.Errorf("hydrate location: %w", err)
	}
	if detail.Type, err = r.GetAppointmentTypeByID(ctx, appt.TypeID); err != nil {
		return nil, fmt.Errorf("hydrate type: %w", err)
	}
	return &detail, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, updatedBy uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_by = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, updatedBy)

	return scanAppointment(row)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, date time.Time, start, end TimeOfDay, updatedBy uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    status = $5,
		    reschedule_count = reschedule_count + 1,
		    updated_by = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($7)
		RETURNING `+appointmentColumns+`
	`, id, date, toPgTime(start), toPgTime(end), StatusScheduled, updatedBy, blockingStatusStrings())

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, `patient_id`, patientID)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, `doctor_id`, doctorID)
}

func (r *PgRepository) listAppointments(ctx context.Context, column string, id uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
		ORDER BY date, start_time
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]AppointmentDetail, 0, len(appts))
	for i := range appts {
		d, err := r.hydrate(ctx, &appts[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, nil
}

func (r *PgRepository) FindStaleScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	// An appointment is stale once its date plus end time is older than the
	// cutoff and nobody ever confirmed or checked in.
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND date + end_time < $2
	`, StatusScheduled, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertAuditEntry(ctx context.Context, e AuditEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (action, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, e.Action, e.AppointmentID, e.ActorID, e.Payload, nullableTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAuditEntries(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, appointment_id, actor_id, payload, created_at
		FROM audit_log
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.AppointmentID, &e.ActorID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
