package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carelink/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Service *schedule.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware)

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Availability
	r.Get("/doctors/{doctorID}/availability", availabilityHandler(cfg.Service))

	// Appointments
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}/audit", listAuditEntriesHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		return cfg.Service.ConfirmAppointment(req.Context(), id, actor)
	}))
	r.Post("/appointments/{id}/check-in", transitionHandler(func(req *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		return cfg.Service.CheckInAppointment(req.Context(), id, actor)
	}))
	r.Post("/appointments/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		return cfg.Service.CompleteAppointment(req.Context(), id, actor)
	}))
	r.Post("/appointments/{id}/cancel", transitionHandler(func(req *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		return cfg.Service.CancelAppointment(req.Context(), id, actor)
	}))
	r.Post("/appointments/{id}/no-show", transitionHandler(func(req *http.Request, id uuid.UUID, actor schedule.Actor) (*schedule.Appointment, error) {
		return cfg.Service.MarkNoShow(req.Context(), id, actor)
	}))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))

	// Doctor availability overrides
	r.Post("/doctors/{doctorID}/overrides", createOverrideHandler(cfg.Service))
	r.Get("/doctors/{doctorID}/overrides", listOverridesHandler(cfg.Service))
	r.Delete("/overrides/{id}", deleteOverrideHandler(cfg.Service))

	// Administrator configuration
	r.Post("/locations/{locationID}/working-periods", createWorkingPeriodHandler(cfg.Service))
	r.Get("/locations/{locationID}/working-periods", listWorkingPeriodsHandler(cfg.Service))
	r.Put("/doctors/{doctorID}/daily-cap", setDailyCapHandler(cfg.Service))

	return r
}
