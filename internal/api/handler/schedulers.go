package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/carebeat/internal/api/respond"
	"github.com/albapepper/carebeat/internal/scheduler"
)

// SchedulerStatus describes one engine.
type SchedulerStatus struct {
	Name     string      `json:"name"`
	Interval string      `json:"interval"`
	State    string      `json:"state"`
	LastTick *TickStatus `json:"last_tick,omitempty"`
}

// TickStatus is the JSON form of scheduler.TickResult.
type TickStatus struct {
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
	Skipped         string    `json:"skipped,omitempty"`
	Error           string    `json:"error,omitempty"`
	Subjects        int       `json:"subjects"`
	Due             int       `json:"due"`
	Fired           int       `json:"fired"`
	Duplicates      int       `json:"duplicates"`
	SubjectErrors   int       `json:"subject_errors"`
	RecipientErrors int       `json:"recipient_errors"`
}

func tickStatus(res scheduler.TickResult) *TickStatus {
	ts := &TickStatus{
		StartedAt:       res.StartedAt,
		DurationMS:      res.Duration.Milliseconds(),
		Skipped:         res.Skipped,
		Subjects:        res.Subjects,
		Due:             res.Due,
		Fired:           res.Fired,
		Duplicates:      res.Duplicates,
		SubjectErrors:   res.SubjectErrors,
		RecipientErrors: res.RecipientErrors,
	}
	if res.Err != nil {
		ts.Error = res.Err.Error()
	}
	return ts
}

func schedulerStatus(e *scheduler.Engine) SchedulerStatus {
	st := SchedulerStatus{
		Name:     e.Name(),
		Interval: e.Interval().String(),
		State:    e.State().String(),
	}
	if res, ok := e.LastResult(); ok {
		st.LastTick = tickStatus(res)
	}
	return st
}

// ListSchedulers reports every engine's state and last tick.
// @Summary List schedulers
// @Description Returns each scheduler's interval, lifecycle state and most recent tick summary.
// @Tags schedulers
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(ops)
// @Success 200 {array} SchedulerStatus
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /schedulers [get]
func (h *Handler) ListSchedulers(w http.ResponseWriter, r *http.Request) {
	engines := h.Schedulers.Engines()
	out := make([]SchedulerStatus, 0, len(engines))
	for _, e := range engines {
		out = append(out, schedulerStatus(e))
	}
	respond.WriteJSONObject(w, http.StatusOK, out)
}

// HealthCheckSchedulers reports unhealthy when any engine has stopped.
// @Summary Scheduler health check
// @Description Healthy while every scheduler loop is running.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/schedulers [get]
func (h *Handler) HealthCheckSchedulers(w http.ResponseWriter, r *http.Request) {
	states := map[string]string{}
	healthy := true
	for _, e := range h.Schedulers.Engines() {
		s := e.State()
		states[e.Name()] = s.String()
		if s == scheduler.StateStopped {
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	respond.WriteJSONObject(w, code, map[string]interface{}{
		"status":     status,
		"schedulers": states,
		"timestamp":  h.Now().UTC().Format(time.RFC3339),
	})
}

// TickScheduler runs one tick of a scheduler immediately.
// @Summary Run a scheduler tick
// @Description Runs one evaluation pass of the named scheduler now. Deduplication still applies. Deliveries continue after the response.
// @Tags schedulers
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(ops)
// @Param name path string true "Scheduler name" Enums(medicine_reminder, reminder, wellbeing_prompt, inactivity, refill_reminder)
// @Success 200 {object} TickStatus
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /schedulers/{name}/tick [post]
func (h *Handler) TickScheduler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, ok := h.Schedulers.Engine(name)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown scheduler "+name)
		return
	}
	if e.State() == scheduler.StateStopped {
		respond.WriteError(w, http.StatusConflict, "STOPPED", "Scheduler "+name+" is stopped")
		return
	}

	// A client that hangs up must not abandon events the tick already claimed.
	res, ran := e.Tick(context.WithoutCancel(r.Context()))
	if !ran {
		respond.WriteError(w, http.StatusConflict, "TICK_IN_PROGRESS", "Scheduler "+name+" is already ticking")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, tickStatus(res))
}
