package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-identity-quota/internal/config"
	"github.com/go-identity-quota/internal/transport/http/handler"
	appmiddleware "github.com/go-identity-quota/internal/transport/http/middleware"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds background work such as
// rate-limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-Id", "X-Device-Name"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// With signing keys configured, account deletion and quota checks belong to the bearer's owner.
	// Deployments without keys accept the identity from the body alone.
	ownerAuth := func(next http.Handler) http.Handler { return next }
	if deps.Verifier != nil {
		ownerAuth = appmiddleware.Auth(deps.Verifier)
	}
	adminAuth := func(next http.Handler) http.Handler { return next }
	if cfg.AdminUser != "" {
		adminAuth = chimiddleware.BasicAuth("admin", map[string]string{cfg.AdminUser: cfg.AdminPassword})
	}

	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, clock)

	healthH := handler.NewHealthHandler(deps.Store)
	authH := handler.NewAuthHandler(deps.Auth)
	emailH := handler.NewEmailConfirmHandler(deps.Auth)
	pwH := handler.NewPasswordRecoveryHandler(deps.Auth)
	sessionH := handler.NewSessionHandler(deps.Auth)
	userH := handler.NewUserHandler(deps.Auth)
	quotaH := handler.NewQuotaHandler(deps.Quota)
	adminH := handler.NewAdminHandler(deps.Admin, deps.Quota)

	r.Get("/health-check/{action}", healthH.Ping)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/register", authH.Register)
			r.Post("/verify", emailH.Verify)
			r.Post("/login", authH.Login)
			r.Post("/resend-otp", emailH.Resend)
			r.Post("/password-reset/{action}", pwH.Action)
			r.Post("/sessions/check", sessionH.Check)
		})

		r.Post("/sessions/sign-out", sessionH.SignOut)
		r.Get("/tiers", quotaH.Tiers)

		r.Group(func(r chi.Router) {
			r.Use(ownerAuth)

			r.Post("/quota/check", quotaH.Check)
			r.Delete("/users", userH.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)

			r.Get("/users", adminH.ListUsers)
			r.Delete("/users/unverified", adminH.DeleteUnverified)
			r.Get("/users/{email}", adminH.GetUser)
			r.Delete("/users/{email}", adminH.DeleteUser)
			r.Post("/users/{email}/verify", adminH.VerifyUser)
			r.Put("/identities/{id}/subscription", adminH.SetSubscription)
			r.Get("/identities/{id}/quota", adminH.Usage)
			r.Get("/logs", adminH.DownloadLogs)
			r.Delete("/logs", adminH.DeleteLogs)
		})
	})

	return otelhttp.NewHandler(r, "http.server")
}
