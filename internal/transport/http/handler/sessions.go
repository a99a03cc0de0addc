package handler

import (
	"net/http"

	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/domain"
)

// SessionHandler handles returning-client session endpoints.
type SessionHandler struct {
	svc auth.Service
}

func NewSessionHandler(svc auth.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Check confirms a saved identity id and returns the profile summary.
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionCheckRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := h.svc.Session(r.Context(), req.Email, req.SavedID, sessionClient(r, req.DeviceFields))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req domain.SignOutRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SignOut(r.Context(), req.Email, sessionClient(r, req.DeviceFields)); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "signed out"})
}

// sessionClient lets body fields override the headers; older clients report device details in the body.
func sessionClient(r *http.Request, req domain.DeviceFields) domain.ClientInfo {
	c := clientInfo(r)
	if req.IPAddress != "" {
		c.IP = req.IPAddress
	}
	if req.DeviceID != "" {
		c.DeviceID = req.DeviceID
	}
	if req.DeviceName != "" {
		c.DeviceName = req.DeviceName
	}
	return c
}
