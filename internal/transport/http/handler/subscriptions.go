package handler

import (
	"net/http"

	"github.com/appointment-watch/internal/application/registration"
	"github.com/appointment-watch/internal/domain"
)

// SubscriptionHandler handles watch registration.
type SubscriptionHandler struct {
	svc registration.Service
}

func NewSubscriptionHandler(svc registration.Service) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// Upsert creates the watch for the body's notification address or updates
// the existing one. The personal access code comes in the personalCode query parameter.
func (h *SubscriptionHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.svc.Register(r.Context(), req, r.URL.Query().Get("personalCode"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
