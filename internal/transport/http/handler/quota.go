package handler

import (
	"context"
	"net/http"

	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/transport/http/middleware"
)

// QuotaService is the subset of the quota tracker the handlers use.
type QuotaService interface {
	Check(ctx context.Context, identityID string) (domain.Decision, error)
	Tiers(ctx context.Context) ([]domain.SubscriptionTier, error)
}

// QuotaHandler handles quota checks and the tier catalogue.
type QuotaHandler struct {
	svc QuotaService
}

func NewQuotaHandler(svc QuotaService) *QuotaHandler { return &QuotaHandler{svc: svc} }

// Check counts one request for the caller: 200 when allowed, 429 when the tier limit is reached.
// The identity comes from the body or, failing that, from the bearer.
func (h *QuotaHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req domain.QuotaCheckRequest
	if !decode(w, r, &req) {
		return
	}
	identityID := req.UserID
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if identityID != "" && identityID != claims.IdentityID {
			httpError(w, r, domain.ErrUnauthorized)
			return
		}
		identityID = claims.IdentityID
	}
	if identityID == "" {
		writeJSON(w, http.StatusBadRequest, QuotaEnvelope{Error: "user_id required", Kind: domain.KindOf(domain.ErrBadRequest)})
		return
	}

	d, err := h.svc.Check(r.Context(), identityID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	status := http.StatusOK
	if d == domain.Denied {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, QuotaEnvelope{Decision: d.String(), UserID: identityID})
}

func (h *QuotaHandler) Tiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.svc.Tiers(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(tiers))
}
