package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-identity-quota/internal/config"
	"github.com/go-identity-quota/internal/domain"
	jwtinfra "github.com/go-identity-quota/internal/infrastructure/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockQuota struct{ mock.Mock }

func (m *mockQuota) Check(ctx context.Context, id string) (domain.Decision, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Decision), args.Error(1)
}
func (m *mockQuota) Tiers(ctx context.Context) ([]domain.SubscriptionTier, error) {
	args := m.Called(ctx)
	tiers, _ := args.Get(0).([]domain.SubscriptionTier)
	return tiers, args.Error(1)
}
func (m *mockQuota) Usage(ctx context.Context, id string) (*domain.QuotaCounter, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*domain.QuotaCounter)
	return c, args.Error(1)
}

// staticVerifier accepts only the bearer "good", issued to a@b.com.
type staticVerifier struct{}

func (staticVerifier) Verify(token string) (*jwtinfra.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &jwtinfra.Claims{IdentityID: "01A", Email: "a@b.com"}, nil
}

func newTestRouter(t *testing.T, cfg *config.Config, q *mockQuota) http.Handler {
	t.Helper()
	return newTestRouterWithDeps(t, cfg, &Deps{Quota: q})
}

func newTestRouterWithDeps(t *testing.T, cfg *config.Config, deps *Deps) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	deps.Clock = clockwork.NewFakeClock()
	return NewRouter(ctx, cfg, deps)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_PublicRoutes(t *testing.T) {
	q := &mockQuota{}
	q.On("Tiers", mock.Anything).Return(domain.DefaultTiers, nil)
	q.On("Check", mock.Anything, "01A").Return(domain.Allowed, nil)
	h := newTestRouter(t, &config.Config{RateLimitRPS: 5, RateLimitBurst: 10}, q)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health-check/ping", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/v1/tiers", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPost, "/v1/quota/check", strings.NewReader(`{"user_id":"01A"}`))).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, httptest.NewRequest(http.MethodGet, "/v1/nope", nil)).Code)
}

func TestRouter_AdminRequiresBasicAuth(t *testing.T) {
	q := &mockQuota{}
	q.On("Usage", mock.Anything, "01A").Return(&domain.QuotaCounter{IdentityID: "01A", RequestsMade: 3}, nil)
	h := newTestRouter(t, &config.Config{AdminUser: "root", AdminPassword: "s3cret", RateLimitRPS: 5, RateLimitBurst: 10}, q)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/identities/01A/quota", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/identities/01A/quota", nil)
	req.SetBasicAuth("root", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/identities/01A/quota", nil)
	req.SetBasicAuth("root", "s3cret")
	rr := serve(h, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"user_id":"01A","requests_made":3}`, rr.Body.String())
}

func TestRouter_SensitiveRoutesAreRateLimited(t *testing.T) {
	h := newTestRouter(t, &config.Config{RateLimitRPS: 1, RateLimitBurst: 1}, &mockQuota{})

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(`{`))
		req.Header.Set("X-Real-Ip", "7.7.7.7")
		return serve(h, req).Code
	}
	assert.Equal(t, http.StatusBadRequest, login(), "first call reaches the handler")
	assert.Equal(t, http.StatusTooManyRequests, login())
}

func TestRouter_OwnerRoutesNeedBearerWhenKeysConfigured(t *testing.T) {
	q := &mockQuota{}
	q.On("Check", mock.Anything, "01A").Return(domain.Allowed, nil).Once()
	h := newTestRouterWithDeps(t, &config.Config{RateLimitRPS: 5, RateLimitBurst: 10}, &Deps{Quota: q, Verifier: staticVerifier{}})

	del := func(bearer string) int {
		req := httptest.NewRequest(http.MethodDelete, "/v1/users", strings.NewReader(`{"email":"victim@b.com"}`))
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return serve(h, req).Code
	}
	assert.Equal(t, http.StatusUnauthorized, del(""), "anonymous delete")
	assert.Equal(t, http.StatusUnauthorized, del("junk"))
	assert.Equal(t, http.StatusUnauthorized, del("good"), "bearer belongs to another identity")

	check := httptest.NewRequest(http.MethodPost, "/v1/quota/check", strings.NewReader(`{"user_id":"01B"}`))
	assert.Equal(t, http.StatusUnauthorized, serve(h, check).Code, "anonymous quota check")

	check = httptest.NewRequest(http.MethodPost, "/v1/quota/check", strings.NewReader(`{}`))
	check.Header.Set("Authorization", "Bearer good")
	rr := serve(h, check)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"decision":"allowed","user_id":"01A"}`, rr.Body.String())
	q.AssertExpectations(t)
}
