package handler

import (
	"encoding/json"
	"net/http"

	"github.com/albapepper/carebeat/internal/api/respond"
	"github.com/albapepper/carebeat/internal/push"
)

// SubscribeRequest wraps the browser's PushSubscription.toJSON() output.
type SubscribeRequest struct {
	Subscription *push.Endpoint `json:"subscription" validate:"required"`
}

// GetVAPIDPublicKey returns the application server key for subscribing.
// @Summary VAPID public key
// @Description Returns the VAPID public key the browser needs to create a push subscription.
// @Tags push
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} respond.ErrorResponse
// @Router /push/vapid-public-key [get]
func (h *Handler) GetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.VAPIDPublicKey == "" {
		respond.WriteError(w, http.StatusServiceUnavailable, "PUSH_NOT_CONFIGURED",
			"Web Push not configured (VAPID_PUBLIC_KEY missing)")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"publicKey": h.VAPIDPublicKey})
}

// Subscribe stores the caller's push subscription.
// @Summary Register a push subscription
// @Description Saves a browser push subscription for the calling elder or family member.
// @Tags push
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param X-User-Role header string true "Caller role" Enums(elderly, family)
// @Param body body SubscribeRequest true "Push subscription"
// @Success 201 {object} map[string]string
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Router /push/subscribe [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_SUBSCRIPTION",
			"Invalid subscription (endpoint and keys required)", err.Error())
		return
	}

	if err := h.Subscriptions.SaveSubscription(r.Context(), id.UserID, *req.Subscription); err != nil {
		h.Logger.Error("save push subscription failed", "user_id", id.UserID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "SUBSCRIBE_FAILED", "Failed to save subscription")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, map[string]string{"message": "Notifications enabled."})
}
