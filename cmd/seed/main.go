package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carelink/clinic-scheduling/internal/db"
	"github.com/carelink/clinic-scheduling/internal/schedule"
)

var log = zerolog.New(os.Stderr).With().Timestamp().Str("service", "seed").Logger()

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	locations, err := seedLocations(seedCtx, pool, 4)
	if err != nil {
		log.Fatal().Err(err).Msg("seed locations")
	}
	if err := seedAppointmentTypes(seedCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("seed appointment types")
	}
	doctors, err := seedDoctors(seedCtx, pool, 40)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(seedCtx, pool, 2000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedWorkingPeriods(seedCtx, pool, locations); err != nil {
		log.Fatal().Err(err).Msg("seed working periods")
	}
	if err := seedDailyCaps(seedCtx, pool, doctors, locations); err != nil {
		log.Fatal().Err(err).Msg("seed daily caps")
	}

	log.Info().Msg("seed complete")
}

func seedLocations(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding locations")

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.City() + " Clinic"
		address := gofakeit.Street()

		_, err := pool.Exec(ctx, `
			INSERT INTO locations (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, address)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedAppointmentTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := []struct {
		name     string
		duration int
	}{
		{"General Consultation", 30},
		{"Follow-up Visit", 15},
		{"Annual Physical", 60},
		{"Vaccination", 15},
		{"Specialist Consultation", 45},
	}

	log.Info().Int("count", len(types)).Msg("seeding appointment types")

	for _, t := range types {
		_, err := pool.Exec(ctx, `
			INSERT INTO appointment_types (id, name, default_duration_minutes)
			VALUES ($1, $2, $3)
		`, uuid.New(), t.name, t.duration)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func seedWorkingPeriods(ctx context.Context, pool *pgxpool.Pool, locations []uuid.UUID) error {
	log.Info().Msg("seeding working periods")

	morningStart, _ := schedule.ParseTimeOfDay("09:00")
	morningEnd, _ := schedule.ParseTimeOfDay("12:30")
	afternoonStart, _ := schedule.ParseTimeOfDay("14:00")
	afternoonEnd, _ := schedule.ParseTimeOfDay("18:00")

	for _, loc := range locations {
		// Monday through Friday, split morning/afternoon shifts.
		for weekday := 1; weekday <= 5; weekday++ {
			for _, shift := range [][2]schedule.TimeOfDay{
				{morningStart, morningEnd},
				{afternoonStart, afternoonEnd},
			} {
				_, err := pool.Exec(ctx, `
					INSERT INTO working_periods (id, location_id, iso_weekday, start_time, end_time)
					VALUES ($1, $2, $3, $4, $5)
				`, uuid.New(), loc, weekday, shift[0].String(), shift[1].String())
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func seedDailyCaps(ctx context.Context, pool *pgxpool.Pool, doctors, locations []uuid.UUID) error {
	log.Info().Msg("seeding daily caps")

	for _, doc := range doctors {
		loc := locations[gofakeit.Number(0, len(locations)-1)]
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := pool.Exec(ctx, `
				INSERT INTO daily_caps (doctor_id, location_id, iso_weekday, max_appointments)
				VALUES ($1, $2, $3, $4)
			`, doc, loc, weekday, gofakeit.Number(8, 16))
			if err != nil {
				return err
			}
		}
	}
	return nil
}
