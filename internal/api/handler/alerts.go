package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/carebeat/internal/api/respond"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/store"
	"github.com/albapepper/carebeat/internal/timematch"
)

// IntakeResponse confirms a medicine intake.
type IntakeResponse struct {
	Message  string `json:"message"`
	Date     string `json:"date"`
	Notified int    `json:"notified"`
}

// SOSRequest carries the elder's position when the device knows it.
type SOSRequest struct {
	Lat *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng *float64 `json:"lng" validate:"omitempty,longitude"`
}

// SOSResponse confirms an SOS alert.
type SOSResponse struct {
	Message  string `json:"message"`
	AlertID  string `json:"alertId"`
	Notified int    `json:"notified"`
}

// MarkMedicineTaken logs today's intake of a medicine and tells caregivers.
// @Summary Mark a medicine as taken
// @Description Records that the calling elder took the medicine today, which stops today's reminders for it, and notifies linked caregivers.
// @Tags medicines
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(elderly)
// @Param id path string true "Medicine ID"
// @Success 200 {object} IntakeResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /medicines/{id}/taken [post]
func (h *Handler) MarkMedicineTaken(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	medicineID := chi.URLParam(r, "id")

	now := h.Now().In(h.Location)
	day := timematch.DayKey(now)
	name, err := h.Store.RecordIntake(r.Context(), id.UserID, medicineID, day, now)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "MEDICINE_NOT_FOUND", "Medicine not found")
		return
	}
	if err != nil {
		h.Logger.Error("record intake failed", "user_id", id.UserID, "medicine_id", medicineID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTAKE_FAILED", "Failed to record intake")
		return
	}

	resp := IntakeResponse{Message: "Marked as taken.", Date: day}
	if h.Alerts != nil && name != "" {
		report, err := h.Alerts.MedicineTaken(context.WithoutCancel(r.Context()), id.UserID, medicineID, name)
		if err != nil {
			h.Logger.Warn("medicine-taken alert failed", "user_id", id.UserID, "error", err)
		}
		resp.Notified = report.Sent()
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}

// SendSOS records an SOS alert and notifies caregivers.
// @Summary Send an SOS alert
// @Description Records an SOS from the calling elder, with an optional position, and pushes it to every linked caregiver.
// @Tags sos
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(elderly)
// @Param body body SOSRequest false "Position"
// @Success 200 {object} SOSResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /sos [post]
func (h *Handler) SendSOS(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil || (req.Lat == nil) != (req.Lng == nil) {
		detail := "lat and lng must be given together"
		if err != nil {
			detail = err.Error()
		}
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_LOCATION", "Invalid location", detail)
		return
	}

	now := h.Now()
	alert, err := h.Store.RecordSOS(r.Context(), id.UserID, req.Lat, req.Lng, now)
	if err != nil {
		h.Logger.Error("record sos failed", "user_id", id.UserID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "SOS_FAILED", "Failed to send SOS")
		return
	}
	if err := h.Store.TouchActivity(r.Context(), id.UserID, now); err != nil {
		h.Logger.Warn("touch activity after sos failed", "user_id", id.UserID, "error", err)
	}

	var report push.Report
	if h.Alerts != nil {
		report, err = h.Alerts.SOS(context.WithoutCancel(r.Context()), id.UserID, alert)
		if err != nil {
			h.Logger.Error("sos alert failed", "user_id", id.UserID, "alert_id", alert.ID, "error", err)
		}
	}
	respond.WriteJSONObject(w, http.StatusOK, SOSResponse{
		Message:  "SOS alert sent. Your family will be notified.",
		AlertID:  alert.ID,
		Notified: report.Sent(),
	})
}
