package handler

import (
	"net/http"

	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/transport/http/middleware"
)

// UserHandler handles self-service account endpoints.
type UserHandler struct {
	svc auth.Service
}

func NewUserHandler(svc auth.Service) *UserHandler { return &UserHandler{svc: svc} }

// Delete removes the identity named in the body. A bearer, when sent, must belong to that identity.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.Email != domain.NormalizeEmail(req.Email) {
		httpError(w, r, domain.ErrUnauthorized)
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "user deleted"})
}
