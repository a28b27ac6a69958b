package handler

import (
	"net/http"

	"github.com/appointment-watch/internal/application/accesscode"
	"github.com/appointment-watch/internal/domain"
)

// AccessCodeHandler handles personal access code issuance. Admin only.
type AccessCodeHandler struct {
	svc accesscode.Service
}

func NewAccessCodeHandler(svc accesscode.Service) *AccessCodeHandler {
	return &AccessCodeHandler{svc: svc}
}

func (h *AccessCodeHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.AccessCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	issued, err := h.svc.Issue(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}
