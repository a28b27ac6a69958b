package poll

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appointment-watch/internal/application/dispatch"
	"github.com/appointment-watch/internal/application/reconcile"
	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/infrastructure/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func day(n int) string { return now.AddDate(0, 0, n).Format("2006-01-02") }

// --- in-memory store ---

type memStore struct {
	mu      sync.Mutex
	subs    map[string]domain.Subscription
	deletes map[string]int
	scanErr error
}

func newMemStore(subs ...domain.Subscription) *memStore {
	s := &memStore{subs: map[string]domain.Subscription{}, deletes: map[string]int{}}
	for _, sub := range subs {
		s.subs[sub.RowID] = sub
	}
	return s
}

func (s *memStore) ScanActive(_ context.Context, maxCount int) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Subscription
	for _, id := range ids {
		if len(out) == maxCount {
			break
		}
		if s.subs[id].Enabled {
			out = append(out, s.subs[id])
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.RowID)
	s.deletes[sub.RowID]++
	return nil
}

func (s *memStore) DecrementQuota(_ context.Context, sub *domain.Subscription) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subs[sub.RowID]
	if !ok || cur.Quota < 1 {
		return 0, domain.ErrNotFound
	}
	cur.Quota--
	s.subs[sub.RowID] = cur
	return cur.Quota, nil
}

func (s *memStore) get(id string) (domain.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// --- sender ---

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// --- feed ---

type feedReply struct {
	status int
	dates  []string
}

func feedBody(dates ...string) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = fmt.Sprintf(`{"key":"slot-%d","date":%q,"startTime":"09:00","endTime":"09:10","parts":1}`, i, d)
	}
	return feed.Sentinel + `{"status":"OK","data":[` + strings.Join(parts, ",") + `]}`
}

// newFeed serves replies keyed by desk location code.
func newFeed(t *testing.T, replies map[string]feedReply) *feed.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc := strings.Split(strings.TrimPrefix(r.URL.Path, "/oap/api/desks/"), "/")[0]
		reply, ok := replies[loc]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if reply.status != 0 && reply.status != http.StatusOK {
			w.WriteHeader(reply.status)
			return
		}
		_, _ = w.Write([]byte(feedBody(reply.dates...)))
	}))
	t.Cleanup(srv.Close)
	return feed.NewClient(feed.Options{BaseURL: srv.URL})
}

// --- helpers ---

func activeSub(id, location string, maxDays, quota int) domain.Subscription {
	return domain.Subscription{
		Partition:           domain.SubscriptionPartition,
		RowID:               id,
		LocationCode:        location,
		ProductKey:          "BIO",
		PartySize:           1,
		MaxDays:             maxDays,
		NotificationAddress: "a@b.com",
		ExpiresAt:           now.AddDate(0, 0, 30),
		Quota:               quota,
		Enabled:             true,
	}
}

func newOrchestrator(cfg Config, store *memStore, fc slotFetcher, sender dispatch.Sender) *Orchestrator {
	return NewOrchestrator(cfg, Deps{
		Reconciler: reconcile.New(store, nil).WithClock(clock),
		Feed:       fc,
		Dispatcher: dispatch.New(sender).WithClock(clock),
		Quota:      store,
	}).WithClock(clock)
}

// --- scenarios ---

func TestRunCycle_MatchedNotifiedDecrementsQuota(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 5))
	sender := &recordingSender{}
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(10), day(50)}}})

	report, err := newOrchestrator(Config{}, store, fc, sender).RunCycle(context.Background())
	require.NoError(t, err)

	res, ok := report.Result("s1")
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeMatchedNotified, res.Outcome)
	require.NotNil(t, res.Slot)
	assert.Equal(t, day(10), res.Slot.Date.Format("2006-01-02"))
	assert.Equal(t, 4, res.RemainingQuota)
	assert.Empty(t, res.QuotaErr)

	assert.Equal(t, 1, sender.count())
	assert.Equal(t, "a@b.com", sender.sent[0].To)

	stored, ok := store.get("s1")
	require.True(t, ok)
	assert.Equal(t, 4, stored.Quota)

	rec, err := reconcile.New(store, nil).WithClock(clock).Reconcile(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, rec.Valid, 1)
	assert.Equal(t, "s1", rec.Valid[0].RowID)
}

func TestRunCycle_FetchFailureLeavesRecordUnchanged(t *testing.T) {
	before := activeSub("s1", "ZW", 30, 5)
	store := newMemStore(before)
	sender := &recordingSender{}
	fc := newFeed(t, map[string]feedReply{"ZW": {status: http.StatusBadGateway}})

	report, err := newOrchestrator(Config{}, store, fc, sender).RunCycle(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeFetchFailed, res.Outcome)
	assert.Contains(t, res.Err, "502")
	assert.Zero(t, sender.count())

	after, ok := store.get("s1")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestRunCycle_ExpiredSubscriptionIsPurged(t *testing.T) {
	expired := activeSub("old", "ZW", 30, 5)
	expired.ExpiresAt = now.Add(-time.Hour)
	store := newMemStore(expired, activeSub("s1", "ZW", 30, 5))
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(60)}}})

	report, err := newOrchestrator(Config{}, store, fc, &recordingSender{}).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Purged)
	_, ok := report.Result("old")
	assert.False(t, ok)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeNoMatch, res.Outcome)

	assert.Equal(t, 1, store.deletes["old"])
	scanned, err := store.ScanActive(context.Background(), 30)
	require.NoError(t, err)
	for _, s := range scanned {
		assert.NotEqual(t, "old", s.RowID)
	}
}

func TestRunCycle_LastQuotaExhaustsSubscription(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 1))
	sender := &recordingSender{}
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(3)}}})
	o := newOrchestrator(Config{}, store, fc, sender)

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeMatchedNotified, res.Outcome)
	assert.Equal(t, 0, res.RemainingQuota)

	report, err = o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, sender.count())
	_, ok := store.get("s1")
	assert.False(t, ok)
}

func TestRunCycle_WindowCappedByLookahead(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 200, 5))
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(50)}}})

	report, err := newOrchestrator(Config{MaxLookaheadDays: 45}, store, fc, &recordingSender{}).RunCycle(context.Background())
	require.NoError(t, err)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeNoMatch, res.Outcome)
}

func TestRunCycle_DispatchFailureKeepsQuota(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 5))
	sender := &recordingSender{err: errors.New("smtp down")}
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(1)}}})

	report, err := newOrchestrator(Config{}, store, fc, sender).RunCycle(context.Background())
	require.NoError(t, err)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeDispatchFailed, res.Outcome)
	assert.Contains(t, res.Err, "smtp down")

	stored, _ := store.get("s1")
	assert.Equal(t, 5, stored.Quota)
}

func TestRunCycle_FailuresAreScopedToOneSubscription(t *testing.T) {
	store := newMemStore(
		activeSub("a", "AM", 30, 5),
		activeSub("b", "ZW", 30, 5),
		activeSub("c", "DH", 30, 5),
	)
	fc := newFeed(t, map[string]feedReply{
		"AM": {status: http.StatusInternalServerError},
		"ZW": {dates: []string{day(2)}},
		"DH": {dates: nil},
	})

	report, err := newOrchestrator(Config{}, store, fc, &recordingSender{}).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.Outcome]int{
		domain.OutcomeFetchFailed:     1,
		domain.OutcomeMatchedNotified: 1,
		domain.OutcomeNoMatch:         1,
	}, report.Counts)
}

func TestRunCycle_QuotaPersistFailureIsRecorded(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 5))
	quota := &mockQuota{}
	quota.On("DecrementQuota", mock.Anything, mock.Anything).Return(0, &domain.StoreError{Op: "decrement-quota", Err: errors.New("throttled")})
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(1)}}})

	o := NewOrchestrator(Config{}, Deps{
		Reconciler: reconcile.New(store, nil).WithClock(clock),
		Feed:       fc,
		Dispatcher: dispatch.New(&recordingSender{}).WithClock(clock),
		Quota:      quota,
	}).WithClock(clock)

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeMatchedNotified, res.Outcome)
	assert.Contains(t, res.QuotaErr, "throttled")
	assert.Equal(t, 5, res.RemainingQuota)
}

// cancelAfterSend cancels the cycle context once the alert has gone out.
type cancelAfterSend struct {
	recordingSender
	cancel context.CancelFunc
}

func (c *cancelAfterSend) Send(ctx context.Context, msg domain.Message) error {
	err := c.recordingSender.Send(ctx, msg)
	c.cancel()
	return err
}

func TestRunCycle_QuotaDebitSurvivesCycleCancellation(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 5))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancelAfterSend{cancel: cancel}
	quota := &mockQuota{}
	quota.On("DecrementQuota", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(4, nil).Once()
	fc := newFeed(t, map[string]feedReply{"ZW": {dates: []string{day(1)}}})

	o := NewOrchestrator(Config{}, Deps{
		Reconciler: reconcile.New(store, nil).WithClock(clock),
		Feed:       fc,
		Dispatcher: dispatch.New(sender).WithClock(clock),
		Quota:      quota,
	}).WithClock(clock)

	report, _ := o.RunCycle(ctx)
	require.NotNil(t, report)
	res, _ := report.Result("s1")
	assert.Equal(t, domain.OutcomeMatchedNotified, res.Outcome)
	assert.Empty(t, res.QuotaErr)
	assert.Equal(t, 4, res.RemainingQuota)
	assert.Equal(t, 1, sender.count())
	quota.AssertExpectations(t)
}

func TestRunCycle_ScanFailureAbortsCycle(t *testing.T) {
	store := newMemStore(activeSub("s1", "ZW", 30, 5))
	store.scanErr = &domain.StoreError{Op: "scan", Err: errors.New("unreachable")}
	sender := &recordingSender{}

	report, err := newOrchestrator(Config{}, store, newFeed(t, nil), sender).RunCycle(context.Background())
	assert.Nil(t, report)
	var se *domain.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Zero(t, sender.count())
}

func TestRunCycle_RefusesOverlap(t *testing.T) {
	o := newOrchestrator(Config{}, newMemStore(), newFeed(t, nil), &recordingSender{})
	o.mu.Lock()
	defer o.mu.Unlock()

	report, err := o.RunCycle(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrCycleInProgress)
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	var subs []domain.Subscription
	for i := 0; i < 8; i++ {
		subs = append(subs, activeSub(fmt.Sprintf("s%d", i), "ZW", 30, 5))
	}
	store := newMemStore(subs...)

	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(feedBody()))
	}))
	defer srv.Close()

	report, err := newOrchestrator(Config{Concurrency: 2}, store, feed.NewClient(feed.Options{BaseURL: srv.URL}), &recordingSender{}).
		RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Results, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// --- lease ---

type mockQuota struct{ mock.Mock }

func (m *mockQuota) DecrementQuota(ctx context.Context, sub *domain.Subscription) (int, error) {
	args := m.Called(ctx, sub)
	return args.Int(0), args.Error(1)
}

type mockLocker struct{ mock.Mock }

func (m *mockLocker) Acquire(ctx context.Context, name, owner string, ttl time.Duration) error {
	return m.Called(ctx, name, owner, ttl).Error(0)
}

func (m *mockLocker) Release(ctx context.Context, name, owner string) error {
	return m.Called(ctx, name, owner).Error(0)
}

func TestRunCycle_LeaseHeldElsewhereSkips(t *testing.T) {
	locker := &mockLocker{}
	locker.On("Acquire", mock.Anything, DefaultLeaseName, mock.Anything, mock.Anything).Return(domain.ErrConflict)
	store := newMemStore(activeSub("s1", "ZW", 30, 5))

	o := NewOrchestrator(Config{}, Deps{
		Reconciler: reconcile.New(store, nil),
		Feed:       newFeed(t, nil),
		Dispatcher: dispatch.New(&recordingSender{}),
		Quota:      store,
		Locker:     locker,
	})
	report, err := o.RunCycle(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrCycleInProgress)
	locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_LeaseReleasedAfterCycle(t *testing.T) {
	locker := &mockLocker{}
	locker.On("Acquire", mock.Anything, "custom", mock.Anything, 2*time.Minute).Return(nil)
	locker.On("Release", mock.Anything, "custom", mock.Anything).Return(nil)
	store := newMemStore()

	o := NewOrchestrator(Config{LeaseName: "custom", CycleTimeout: time.Minute}, Deps{
		Reconciler: reconcile.New(store, nil),
		Feed:       newFeed(t, nil),
		Dispatcher: dispatch.New(&recordingSender{}),
		Quota:      store,
		Locker:     locker,
	})
	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	locker.AssertExpectations(t)
	assert.Equal(t, locker.Calls[0].Arguments.String(2), locker.Calls[1].Arguments.String(2))
}

// --- Run ---

type cancellingReconciler struct {
	calls  atomic.Int32
	cancel context.CancelFunc
}

func (c *cancellingReconciler) Reconcile(context.Context, int) (*reconcile.Result, error) {
	c.calls.Add(1)
	c.cancel()
	return &reconcile.Result{}, nil
}

func TestRun_TicksImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &cancellingReconciler{cancel: cancel}
	o := NewOrchestrator(Config{PollInterval: time.Hour}, Deps{Reconciler: rec})

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Equal(t, int32(1), rec.calls.Load())
}
