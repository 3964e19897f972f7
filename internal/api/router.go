package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/patient"
)

// PatientService is what the HTTP layer needs from internal/patient.
type PatientService interface {
	Upsert(ctx context.Context, p patient.UpsertParams) (*patient.Patient, bool, error)
	List(ctx context.Context) ([]patient.Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RouterConfig struct {
	Service  PatientService
	Realtime http.Handler
	Postgres Pinger
	Redis    Pinger
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &patientHandlers{svc: cfg.Service, log: cfg.Logger}
	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/sessions/{sessionID}", h.upsert)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.delete)
	})

	if cfg.Realtime != nil {
		r.Get("/realtime", cfg.Realtime.ServeHTTP)
	}

	return r
}
