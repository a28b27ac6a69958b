// Package registration creates or updates a watch for an authorized address.
package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/pkg/validate"
)

type Service interface {
	Register(ctx context.Context, req domain.SubscriptionRequest, code string) (*domain.Subscription, error)
}

type subscriptionStore interface {
	UpsertByAddress(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

type codeAuthorizer interface {
	Authorize(ctx context.Context, address, code string) error
}

type service struct {
	repo   subscriptionStore
	codes  codeAuthorizer
	logger *slog.Logger
	now    func() time.Time
}

type ServiceDeps struct {
	Repo   subscriptionStore
	Codes  codeAuthorizer
	Logger *slog.Logger
	Now    func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{repo: deps.Repo, codes: deps.Codes, logger: deps.Logger, now: deps.Now}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register validates req, checks code against the notification address and
// upserts the watch. There is at most one watch per address; a second
// registration updates it in place.
func (s *service) Register(ctx context.Context, req domain.SubscriptionRequest, code string) (*domain.Subscription, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, &domain.ValidationError{Msg: "expire_date must be in the future"}
	}
	if err := s.codes.Authorize(ctx, req.NotificationAddress, code); err != nil {
		return nil, err
	}

	sub, err := s.repo.UpsertByAddress(ctx, req.ToSubscription(now))
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscription upserted", "row_id", sub.RowID, "address", sub.NotificationAddress)
	return sub, nil
}
