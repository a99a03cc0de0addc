package admin

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockIdentities struct{ mock.Mock }

func (m *mockIdentities) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.Identity); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentities) MarkVerified(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockIdentities) SetSubscriptionLevel(ctx context.Context, id string, level int) error {
	return m.Called(ctx, id, level).Error(0)
}
func (m *mockIdentities) Delete(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}
func (m *mockIdentities) List(ctx context.Context) ([]domain.Identity, error) {
	return m.identities(m.Called(ctx))
}
func (m *mockIdentities) ListUnverified(ctx context.Context) ([]domain.Identity, error) {
	return m.identities(m.Called(ctx))
}
func (m *mockIdentities) ListRegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Identity, error) {
	return m.identities(m.Called(ctx, from, to))
}
func (m *mockIdentities) DeleteUnverified(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockIdentities) identities(args mock.Arguments) ([]domain.Identity, error) {
	out, _ := args.Get(0).([]domain.Identity)
	return out, args.Error(1)
}

type mockTiers struct{ mock.Mock }

func (m *mockTiers) Get(ctx context.Context, level int) (*domain.SubscriptionTier, error) {
	args := m.Called(ctx, level)
	if t, _ := args.Get(0).(*domain.SubscriptionTier); t != nil {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAuditLog struct{ mock.Mock }

func (m *mockAuditLog) Open() (io.ReadCloser, string, error) {
	args := m.Called()
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.String(1), args.Error(2)
}
func (m *mockAuditLog) Purge() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(ids *mockIdentities, tiers *mockTiers, audit AuditLog) Service {
	return NewService(ServiceDeps{Identities: ids, Tiers: tiers, Audit: audit, Clock: clockwork.NewFakeClockAt(now)})
}

// --- tests ---

func TestGet_NormalizesEmail(t *testing.T) {
	ids := &mockIdentities{}
	ids.On("FindByEmail", mock.Anything, "a@b.com").Return(&domain.Identity{ID: "01A", Email: "a@b.com"}, nil)

	got, err := newService(ids, nil, nil).Get(context.Background(), " A@B.com")
	require.NoError(t, err)
	assert.Equal(t, "01A", got.ID)
}

func TestDelete(t *testing.T) {
	ids := &mockIdentities{}
	ids.On("Delete", mock.Anything, "a@b.com").Return(true, nil).Once()
	ids.On("Delete", mock.Anything, "ghost@b.com").Return(false, nil).Once()
	svc := newService(ids, nil, nil)

	assert.NoError(t, svc.Delete(context.Background(), "a@b.com"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "ghost@b.com"), domain.ErrNotFound)
	ids.AssertExpectations(t)
}

func TestDeleteUnverified(t *testing.T) {
	ids := &mockIdentities{}
	ids.On("DeleteUnverified", mock.Anything).Return(3, nil)

	n, err := newService(ids, nil, nil).DeleteUnverified(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRegisteredOn(t *testing.T) {
	ids := &mockIdentities{}
	from := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	ids.On("ListRegisteredBetween", mock.Anything, from, from.Add(24*time.Hour)).
		Return([]domain.Identity{{ID: "01A"}}, nil)
	svc := newService(ids, nil, nil)

	got, err := svc.RegisteredOn(context.Background(), "2024-02-29")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.RegisteredOn(context.Background(), "29/02/2024")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRegisteredIn_Windows(t *testing.T) {
	cases := []struct {
		window string
		span   time.Duration
	}{
		{WindowLast30Days, 30 * 24 * time.Hour},
		{WindowLast6Months, 180 * 24 * time.Hour},
		{WindowLastYear, 365 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.window, func(t *testing.T) {
			ids := &mockIdentities{}
			ids.On("ListRegisteredBetween", mock.Anything, now.Add(-tc.span), now.Add(time.Millisecond)).
				Return([]domain.Identity{}, nil).Once()

			_, err := newService(ids, nil, nil).RegisteredIn(context.Background(), tc.window)
			require.NoError(t, err)
			ids.AssertExpectations(t)
		})
	}
}

func TestRegisteredIn_UnknownWindowIsAllTime(t *testing.T) {
	ids := &mockIdentities{}
	ids.On("List", mock.Anything).Return([]domain.Identity{{ID: "01A"}, {ID: "01B"}}, nil)

	got, err := newService(ids, nil, nil).RegisteredIn(context.Background(), "All Time")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	ids.AssertNotCalled(t, "ListRegisteredBetween", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetSubscriptionLevel(t *testing.T) {
	ids := &mockIdentities{}
	tiers := &mockTiers{}
	tiers.On("Get", mock.Anything, 1).Return(&domain.SubscriptionTier{Level: 1, MaxRequests: 100}, nil)
	tiers.On("Get", mock.Anything, 9).Return(nil, domain.ErrNotFound)
	ids.On("SetSubscriptionLevel", mock.Anything, "01A", 1).Return(nil).Once()
	svc := newService(ids, tiers, nil)

	require.NoError(t, svc.SetSubscriptionLevel(context.Background(), "01A", 1))
	assert.ErrorIs(t, svc.SetSubscriptionLevel(context.Background(), "01A", 9), domain.ErrUnknownTier)
	ids.AssertExpectations(t)
}

func TestSetSubscriptionLevel_StoreFault(t *testing.T) {
	tiers := &mockTiers{}
	tiers.On("Get", mock.Anything, 1).Return(nil, domain.Unavailable("get tier", errors.New("io")))

	err := newService(&mockIdentities{}, tiers, nil).SetSubscriptionLevel(context.Background(), "01A", 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestAuditLog(t *testing.T) {
	log := &mockAuditLog{}
	log.On("Open").Return(io.NopCloser(strings.NewReader("Login,...\n")), "audit-20240615.csv", nil)
	log.On("Purge").Return(2, nil)
	svc := newService(&mockIdentities{}, nil, log)

	rc, name, err := svc.OpenAuditLog()
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "audit-20240615.csv", name)

	n, err := svc.PurgeAuditLogs()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAuditLog_Disabled(t *testing.T) {
	svc := newService(&mockIdentities{}, nil, nil)

	_, _, err := svc.OpenAuditLog()
	assert.ErrorIs(t, err, domain.ErrNotFound)
	n, err := svc.PurgeAuditLogs()
	assert.NoError(t, err)
	assert.Zero(t, n)
}
