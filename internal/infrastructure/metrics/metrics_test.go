package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-identity-quota/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.QuotaDecision(0, domain.Allowed)
	m.QuotaDecision(0, domain.Allowed)
	m.QuotaDecision(0, domain.Denied)
	m.Swept("otp", 4, nil)
	m.Swept("otp", 0, errors.New("down"))
	m.AuthOutcome("login", nil)
	m.AuthOutcome("login", domain.ErrInvalidCredentials)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.quotaDecisions.WithLabelValues("0", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaDecisions.WithLabelValues("0", "denied")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sweepDeleted.WithLabelValues("otp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepFailures.WithLabelValues("otp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues("login", "invalid_credentials")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := New()
	m.QuotaDecision(1, domain.Allowed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `identity_quota_quota_decisions_total{decision="allowed",level="1"} 1`)
}
