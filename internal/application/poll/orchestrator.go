// Package poll runs the reconcile, fetch, select and dispatch cycle on a schedule.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/appointment-watch/internal/application/reconcile"
	"github.com/appointment-watch/internal/application/selector"
	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/metrics"
	"github.com/appointment-watch/internal/pkg/id"
	"golang.org/x/sync/errgroup"
)

// Config holds the engine tunables. Zero values fall back to the defaults below.
type Config struct {
	MaxLookaheadDays         int
	MaxSubscriptionsPerCycle int
	PollInterval             time.Duration
	Concurrency              int
	CycleTimeout             time.Duration
	LeaseName                string
	LeaseTTL                 time.Duration
}

const (
	DefaultMaxLookaheadDays         = 45
	DefaultMaxSubscriptionsPerCycle = 30
	DefaultPollInterval             = 10 * time.Minute
	DefaultConcurrency              = 10
	DefaultLeaseName                = "poll-cycle"
)

func (c Config) withDefaults() Config {
	if c.MaxLookaheadDays <= 0 {
		c.MaxLookaheadDays = DefaultMaxLookaheadDays
	}
	if c.MaxSubscriptionsPerCycle <= 0 {
		c.MaxSubscriptionsPerCycle = DefaultMaxSubscriptionsPerCycle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.LeaseName == "" {
		c.LeaseName = DefaultLeaseName
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = c.CycleTimeout + time.Minute
	}
	return c
}

type subscriptionReconciler interface {
	Reconcile(ctx context.Context, pageSize int) (*reconcile.Result, error)
}

type slotFetcher interface {
	Fetch(ctx context.Context, location, productKey string, persons int) ([]domain.Slot, error)
}

type alertDispatcher interface {
	Dispatch(ctx context.Context, sub *domain.Subscription, slot domain.Slot) (domain.Sent, error)
}

type quotaStore interface {
	DecrementQuota(ctx context.Context, sub *domain.Subscription) (int, error)
}

// Locker is a cross-process mutual exclusion lease. Acquire returns
// domain.ErrConflict while another owner holds the lease.
type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) error
	Release(ctx context.Context, name, owner string) error
}

// Deps are the collaborators of an Orchestrator. Locker and Logger are optional.
type Deps struct {
	Reconciler subscriptionReconciler
	Feed       slotFetcher
	Dispatcher alertDispatcher
	Quota      quotaStore
	Locker     Locker
	Logger     *slog.Logger
}

type Orchestrator struct {
	cfg        Config
	reconciler subscriptionReconciler
	feed       slotFetcher
	dispatcher alertDispatcher
	quota      quotaStore
	locker     Locker
	owner      string
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		reconciler: deps.Reconciler,
		feed:       deps.Feed,
		dispatcher: deps.Dispatcher,
		quota:      deps.Quota,
		locker:     deps.Locker,
		owner:      id.New(),
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for slot selection and the report.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// RunCycle executes one poll cycle and returns its report. It returns
// domain.ErrCycleInProgress without doing any work when another cycle holds
// the in-process lock or the shared lease.
func (o *Orchestrator) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	if !o.mu.TryLock() {
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return nil, domain.ErrCycleInProgress
	}
	defer o.mu.Unlock()

	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	if o.locker != nil {
		if err := o.locker.Acquire(ctx, o.cfg.LeaseName, o.owner, o.cfg.LeaseTTL); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				metrics.CyclesTotal.WithLabelValues("skipped").Inc()
				return nil, fmt.Errorf("lease %s held by another poller: %w", o.cfg.LeaseName, domain.ErrCycleInProgress)
			}
			metrics.CyclesTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		defer func() {
			if err := o.locker.Release(context.WithoutCancel(ctx), o.cfg.LeaseName, o.owner); err != nil {
				o.logger.Warn("could not release poll lease", "lease", o.cfg.LeaseName, "err", err)
			}
		}()
	}

	report := &domain.CycleReport{StartedAt: o.now(), Counts: make(map[domain.Outcome]int)}

	rec, err := o.reconciler.Reconcile(ctx, o.cfg.MaxSubscriptionsPerCycle)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	report.Scanned = rec.Scanned
	report.Purged = rec.Purged
	report.DeleteFailures = rec.DeleteFailures
	metrics.SubscriptionsPurged.Add(float64(rec.Purged))

	var (
		g     errgroup.Group
		resMu sync.Mutex
	)
	g.SetLimit(o.cfg.Concurrency)
	for i := range rec.Valid {
		if ctx.Err() != nil {
			break
		}
		sub := &rec.Valid[i]
		g.Go(func() error {
			r := o.process(ctx, sub)
			metrics.CycleOutcomes.WithLabelValues(string(r.Outcome)).Inc()
			resMu.Lock()
			report.Add(r)
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = o.now()
	metrics.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if err := ctx.Err(); err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	o.logger.Info("poll cycle finished",
		"scanned", report.Scanned,
		"purged", report.Purged,
		"delete_failures", len(report.DeleteFailures),
		"notified", report.Counts[domain.OutcomeMatchedNotified],
		"no_match", report.Counts[domain.OutcomeNoMatch],
		"fetch_failed", report.Counts[domain.OutcomeFetchFailed],
		"dispatch_failed", report.Counts[domain.OutcomeDispatchFailed],
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, sub *domain.Subscription) domain.SubscriptionResult {
	res := domain.SubscriptionResult{
		SubscriptionID: sub.RowID,
		Address:        sub.NotificationAddress,
		RemainingQuota: sub.Quota,
	}
	log := o.logger.With("subscription_id", sub.RowID, "location", sub.LocationCode, "product", sub.ProductKey)

	slots, err := o.feed.Fetch(ctx, sub.LocationCode, sub.ProductKey, sub.PartySize)
	if err != nil {
		log.Warn("slot fetch failed", "err", err)
		res.Outcome = domain.OutcomeFetchFailed
		res.Err = err.Error()
		return res
	}

	slot, ok := selector.SelectEarliest(slots, min(sub.MaxDays, o.cfg.MaxLookaheadDays), o.now())
	if !ok {
		res.Outcome = domain.OutcomeNoMatch
		return res
	}
	res.Slot = &slot

	if _, err := o.dispatcher.Dispatch(ctx, sub, slot); err != nil {
		log.Error("alert dispatch failed", "err", err)
		res.Outcome = domain.OutcomeDispatchFailed
		res.Err = err.Error()
		return res
	}
	res.Outcome = domain.OutcomeMatchedNotified

	// The alert is out; the debit must land even if the cycle deadline passed.
	remaining, err := o.quota.DecrementQuota(context.WithoutCancel(ctx), sub)
	if err != nil {
		log.Error("alert sent but quota not persisted", "err", err)
		res.QuotaErr = err.Error()
		return res
	}
	res.RemainingQuota = remaining
	log.Info("alert sent", "slot_date", slot.Date, "remaining_quota", remaining)
	return res
}

// Run ticks once immediately and then every PollInterval until ctx is done.
// Cycle failures are logged and never stop the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.logger.Info("poller started", "interval", o.cfg.PollInterval, "concurrency", o.cfg.Concurrency)
	for {
		o.tick(ctx)
		select {
		case <-ctx.Done():
			o.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	if _, err := o.RunCycle(ctx); err != nil {
		if errors.Is(err, domain.ErrCycleInProgress) {
			o.logger.Info("skipping tick", "reason", err)
			return
		}
		o.logger.Error("poll cycle failed", "err", err)
	}
}
