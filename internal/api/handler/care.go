package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/albapepper/carebeat/internal/api/respond"
	"github.com/albapepper/carebeat/internal/timematch"
)

// WellbeingRequest is the elder's daily self-report.
type WellbeingRequest struct {
	Value string `json:"value" validate:"required,oneof=good okay not_well"`
}

// WellbeingResponse echoes the stored entry.
type WellbeingResponse struct {
	OK        bool   `json:"ok"`
	Date      string `json:"date"`
	Value     string `json:"value"`
	Escalated bool   `json:"escalated"`
}

// Heartbeat records elder activity for the inactivity detector.
// @Summary Activity heartbeat
// @Description Marks the calling elder as active now.
// @Tags activity
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(elderly)
// @Success 200 {object} map[string]bool
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /activity/heartbeat [post]
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := h.Store.TouchActivity(r.Context(), id.UserID, h.Now()); err != nil {
		h.Logger.Error("heartbeat failed", "user_id", id.UserID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "HEARTBEAT_FAILED", "Failed to update activity")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]bool{"ok": true})
}

// RecordWellbeing stores today's wellbeing entry and escalates repeated
// "not well" reports to caregivers.
// @Summary Record daily wellbeing
// @Description Stores the calling elder's wellbeing for today. Three "not_well" entries within seven days notify linked caregivers.
// @Tags wellbeing
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(elderly)
// @Param body body WellbeingRequest true "Wellbeing value"
// @Success 200 {object} WellbeingResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /wellbeing/check [post]
func (h *Handler) RecordWellbeing(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req WellbeingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}
	req.Value = strings.ToLower(strings.TrimSpace(req.Value))
	if err := h.validate.Struct(req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_VALUE",
			"value must be one of good, okay, not_well", err.Error())
		return
	}

	now := h.Now().In(h.Location)
	day := timematch.DayKey(now)
	if err := h.Store.RecordWellbeing(r.Context(), id.UserID, day, req.Value); err != nil {
		h.Logger.Error("record wellbeing failed", "user_id", id.UserID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "WELLBEING_FAILED", "Failed to record wellbeing")
		return
	}
	if err := h.Store.TouchActivity(r.Context(), id.UserID, now); err != nil {
		h.Logger.Warn("touch activity after wellbeing failed", "user_id", id.UserID, "error", err)
	}

	resp := WellbeingResponse{OK: true, Date: day, Value: req.Value}
	if h.Escalator != nil {
		res, err := h.Escalator.Check(r.Context(), id.UserID)
		if err != nil {
			h.Logger.Warn("not-well escalation failed", "user_id", id.UserID, "error", err)
		}
		resp.Escalated = res.Fired
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}
