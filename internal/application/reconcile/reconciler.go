// Package reconcile separates still-valid watches from expired ones and purges the latter.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/appointment-watch/internal/domain"
)

type subscriptionStore interface {
	ScanActive(ctx context.Context, maxCount int) ([]domain.Subscription, error)
	Delete(ctx context.Context, sub *domain.Subscription) error
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Valid          []domain.Subscription
	Scanned        int
	Purged         int
	DeleteFailures []domain.DeleteFailure
}

type Reconciler struct {
	store  subscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

func New(store subscriptionStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile scans up to pageSize enabled records, deletes the expired or
// exhausted ones and returns the rest. A failed scan aborts; a failed delete is
// logged and reported in the result, and the record is retried next cycle.
func (r *Reconciler) Reconcile(ctx context.Context, pageSize int) (*Result, error) {
	subs, err := r.store.ScanActive(ctx, pageSize)
	if err != nil {
		return nil, err
	}

	now := r.now()
	res := &Result{Scanned: len(subs), Valid: make([]domain.Subscription, 0, len(subs))}
	for i := range subs {
		sub := &subs[i]
		if !sub.Expired(now) {
			res.Valid = append(res.Valid, *sub)
			continue
		}
		if err := r.store.Delete(ctx, sub); err != nil {
			r.logger.Error("could not delete expired subscription",
				"subscription_id", sub.RowID,
				"address", sub.NotificationAddress,
				"err", err,
			)
			res.DeleteFailures = append(res.DeleteFailures, domain.DeleteFailure{SubscriptionID: sub.RowID, Err: err.Error()})
			continue
		}
		res.Purged++
		r.logger.Info("purged subscription",
			"subscription_id", sub.RowID,
			"expires_at", sub.ExpiresAt,
			"quota", sub.Quota,
		)
	}
	return res, nil
}
