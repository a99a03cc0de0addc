package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/domain"
)

// PasswordRecoveryHandler handles password reset flow endpoints.
type PasswordRecoveryHandler struct {
	svc auth.Service
}

func NewPasswordRecoveryHandler(svc auth.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req domain.EmailRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset code sent"})
	case "confirm":
		var req domain.ResetConfirmRequest
		if !decode(w, r, &req) {
			return
		}
		if err := h.svc.ConfirmPasswordReset(r.Context(), req.OTP, req.NewPassword); err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}
