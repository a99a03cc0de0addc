package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-identity-quota/internal/application/admin"
	"github.com/go-identity-quota/internal/domain"
)

// UsageReader reports a quota counter without counting a request.
type UsageReader interface {
	Usage(ctx context.Context, identityID string) (*domain.QuotaCounter, error)
}

// AdminHandler handles operator endpoints under /v1/admin.
type AdminHandler struct {
	svc   admin.Service
	usage UsageReader
}

func NewAdminHandler(svc admin.Service, usage UsageReader) *AdminHandler {
	return &AdminHandler{svc: svc, usage: usage}
}

// ListUsers returns every identity, or a filtered view when registered_on or window is given.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []domain.Identity
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("registered_on") != "":
		users, err = h.svc.RegisteredOn(r.Context(), q.Get("registered_on"))
	case q.Has("window"):
		users, err = h.svc.RegisteredIn(r.Context(), q.Get("window"))
	case q.Get("verified") == "false":
		users, err = h.svc.ListUnverified(r.Context())
	default:
		users, err = h.svc.List(r.Context())
	}
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(users))
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "email")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "user deleted"})
}

func (h *AdminHandler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkVerified(r.Context(), chi.URLParam(r, "email")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "user verified"})
}

func (h *AdminHandler) DeleteUnverified(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteUnverified(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: strconv.Itoa(n) + " unverified users deleted"})
}

func (h *AdminHandler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	var req domain.SetSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetSubscriptionLevel(r.Context(), chi.URLParam(r, "id"), *req.Level); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "subscription updated"})
}

func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	c, err := h.usage.Usage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuotaEnvelope{UserID: c.IdentityID, RequestsMade: &c.RequestsMade})
}

// DownloadLogs streams the current audit CSV as an attachment.
func (h *AdminHandler) DownloadLogs(w http.ResponseWriter, r *http.Request) {
	rc, name, err := h.svc.OpenAuditLog()
	if err != nil {
		httpError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "audit log download interrupted", "err", err)
	}
}

func (h *AdminHandler) DeleteLogs(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PurgeAuditLogs()
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: strconv.Itoa(n) + " log files deleted"})
}
