package http

import (
	"net/http"

	"github.com/go-identity-quota/internal/application/admin"
	"github.com/go-identity-quota/internal/application/auth"
	"github.com/go-identity-quota/internal/transport/http/handler"
	"github.com/go-identity-quota/internal/transport/http/middleware"
	"github.com/jonboulle/clockwork"
)

// QuotaTracker is the minimal interface the router requires from the quota tracker.
type QuotaTracker interface {
	handler.QuotaService
	handler.UsageReader
}

// Deps holds the application services the router exposes.
type Deps struct {
	Auth  auth.Service
	Admin admin.Service
	Quota QuotaTracker

	// Optional.
	Verifier middleware.TokenVerifier
	Metrics  http.Handler
	Store    handler.Pinger
	Clock    clockwork.Clock
}
