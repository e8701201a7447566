// Package handler provides HTTP handlers for all API endpoints.
// Handlers talk to narrow interfaces so the HTTP layer can be exercised
// without Postgres or a push service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/albapepper/carebeat/internal/api/respond"
	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/scheduler"
)

// CareStore is the slice of the care data store the API writes to.
type CareStore interface {
	Ping(ctx context.Context) error
	TouchActivity(ctx context.Context, userID string, at time.Time) error
	RecordWellbeing(ctx context.Context, userID, day, value string) error
	RecordIntake(ctx context.Context, elderID, medicineID, day string, at time.Time) (medicineName string, err error)
	RecordSOS(ctx context.Context, elderID string, lat, lng *float64, at time.Time) (care.SOSAlert, error)
}

// SubscriptionStore persists browser push subscriptions.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, userID string, ep push.Endpoint) error
}

// Escalator runs the not-well check for one elder.
type Escalator interface {
	Check(ctx context.Context, subjectID string) (scheduler.EscalationResult, error)
}

// Alerter notifies caregivers about what an elder just did.
type Alerter interface {
	MedicineTaken(ctx context.Context, subjectID, medicineID, medicineName string) (push.Report, error)
	SOS(ctx context.Context, subjectID string, alert care.SOSAlert) (push.Report, error)
}

// Schedulers exposes the running scheduler engines.
type Schedulers interface {
	Engines() []*scheduler.Engine
	Engine(name string) (*scheduler.Engine, bool)
}

// Deps are the handler dependencies.
type Deps struct {
	Store          CareStore
	Subscriptions  SubscriptionStore
	Escalator      Escalator
	Alerts         Alerter
	Schedulers     Schedulers
	VAPIDPublicKey string
	Location       *time.Location // zone that decides "today" for wellbeing entries
	Now            func() time.Time
	Logger         *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	Deps
	validate *validator.Validate
}

// New creates a Handler with shared dependencies.
func New(deps Deps) *Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Carebeat API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"push":    h.VAPIDPublicKey != "",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.Warn("database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.Now().UTC().Format(time.RFC3339),
	})
}
