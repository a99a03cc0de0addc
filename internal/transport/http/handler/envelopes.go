package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// LoginEnvelope wraps login responses.
type LoginEnvelope struct {
	Message string `json:"message,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Bearer  string `json:"Bearer,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// QuotaEnvelope wraps quota decisions and usage.
type QuotaEnvelope struct {
	Decision     string `json:"decision,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	RequestsMade *int64 `json:"requests_made,omitempty"`
	Error        string `json:"error,omitempty"`
	Kind         string `json:"kind,omitempty"`
}

// ListEnvelope wraps list responses.
type ListEnvelope[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

func newList[T any](items []T) ListEnvelope[T] {
	if items == nil {
		items = []T{}
	}
	return ListEnvelope[T]{Count: len(items), Data: items}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// errorStatus pairs each domain kind with its response status. Order matters for errors
// that wrap more than one sentinel.
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{domain.ErrDeliveryFailed, http.StatusBadGateway},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrAlreadyVerified, http.StatusConflict},
	{domain.ErrInvalidEmailFormat, http.StatusBadRequest},
	{domain.ErrInvalidOrExpiredCode, http.StatusBadRequest},
	{domain.ErrInvalidOrExpiredToken, http.StatusBadRequest},
	{domain.ErrBadRequest, http.StatusBadRequest},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrUnknownIdentity, http.StatusNotFound},
	{domain.ErrUnknownTier, http.StatusNotFound},
	{domain.ErrNotFound, http.StatusNotFound},
}

// httpError maps err to a status and writes {error, kind}. Only the sentinel text reaches the client.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
			}
			writeJSON(w, e.status, MessageEnvelope{Error: e.err.Error(), Kind: domain.KindOf(e.err)})
			return
		}
	}
	slog.ErrorContext(r.Context(), "unexpected error", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, MessageEnvelope{Error: "internal error", Kind: "internal"})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: "invalid request body", Kind: domain.KindOf(domain.ErrBadRequest)})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Kind: domain.KindOf(domain.ErrBadRequest)})
		return false
	}
	return true
}
