package registration

import (
	"context"
	"testing"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) UpsertByAddress(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	args := m.Called(ctx, sub)
	if fn, ok := args.Get(0).(func(context.Context, *domain.Subscription) *domain.Subscription); ok {
		return fn(ctx, sub), args.Error(1)
	}
	if s, _ := args.Get(0).(*domain.Subscription); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAuthorizer struct{ mock.Mock }

func (m *mockAuthorizer) Authorize(ctx context.Context, address, code string) error {
	return m.Called(ctx, address, code).Error(0)
}

// --- helpers ---

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(repo *mockStore, codes *mockAuthorizer) Service {
	return NewService(ServiceDeps{Repo: repo, Codes: codes, Now: func() time.Time { return now }})
}

func request() domain.SubscriptionRequest {
	exp := now.AddDate(0, 0, 30)
	return domain.SubscriptionRequest{
		LocationCode:        "ZW",
		ProductKey:          "BIO",
		NotificationAddress: "a@b.com",
		ExpiresAt:           &exp,
	}
}

// --- tests ---

func TestRegister_AppliesDefaultsAndUpserts(t *testing.T) {
	repo, codes := &mockStore{}, &mockAuthorizer{}
	codes.On("Authorize", mock.Anything, "a@b.com", "code-1").Return(nil)
	repo.On("UpsertByAddress", mock.Anything, mock.Anything).Return(func(_ context.Context, s *domain.Subscription) *domain.Subscription {
		s.RowID = "01J0"
		return s
	}, nil)

	sub, err := newService(repo, codes).Register(context.Background(), request(), "code-1")
	require.NoError(t, err)

	assert.Equal(t, "01J0", sub.RowID)
	assert.Equal(t, domain.SubscriptionPartition, sub.Partition)
	assert.Equal(t, 1, sub.PartySize)
	assert.Equal(t, domain.RequestDefaultMaxDays, sub.MaxDays)
	assert.Equal(t, domain.RequestDefaultQuota, sub.Quota)
	assert.True(t, sub.Enabled)
	assert.Equal(t, now.AddDate(0, 0, 30), sub.ExpiresAt)
}

func TestRegister_ValidationFailsBeforeAuthorization(t *testing.T) {
	tooMany := 11
	past := now.Add(-time.Hour)
	cases := []struct {
		name   string
		mutate func(*domain.SubscriptionRequest)
	}{
		{"missing city", func(r *domain.SubscriptionRequest) { r.LocationCode = "" }},
		{"bad email", func(r *domain.SubscriptionRequest) { r.NotificationAddress = "nope" }},
		{"party too large", func(r *domain.SubscriptionRequest) { r.PartySize = &tooMany }},
		{"missing expiry", func(r *domain.SubscriptionRequest) { r.ExpiresAt = nil }},
		{"past expiry", func(r *domain.SubscriptionRequest) { r.ExpiresAt = &past }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, codes := &mockStore{}, &mockAuthorizer{}
			req := request()
			tc.mutate(&req)

			_, err := newService(repo, codes).Register(context.Background(), req, "code-1")
			assert.ErrorIs(t, err, domain.ErrBadRequest)
			codes.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "UpsertByAddress", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_UnauthorizedCodeStoresNothing(t *testing.T) {
	repo, codes := &mockStore{}, &mockAuthorizer{}
	codes.On("Authorize", mock.Anything, "a@b.com", "bad").Return(domain.ErrUnauthorized)

	_, err := newService(repo, codes).Register(context.Background(), request(), "bad")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	repo.AssertNotCalled(t, "UpsertByAddress", mock.Anything, mock.Anything)
}
