package handler

import (
	"net/http"

	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/transport/http/middleware"
)

// Device headers sent by the desktop and mobile clients.
const (
	headerDeviceID   = "X-Device-Id"
	headerDeviceName = "X-Device-Name"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Register(r.Context(), req, clientInfo(r)); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "registered; verification code sent"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	if res.Outcome == auth.VerificationRequired {
		writeJSON(w, http.StatusForbidden, LoginEnvelope{
			Error: "verification required; a new code has been sent",
			Kind:  res.Outcome.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, LoginEnvelope{Message: "login successful", UserID: res.IdentityID, Bearer: res.Bearer})
}

func clientInfo(r *http.Request) domain.ClientInfo {
	return domain.ClientInfo{
		IP:         middleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
		DeviceID:   r.Header.Get(headerDeviceID),
		DeviceName: r.Header.Get(headerDeviceName),
	}
}
