package http

import (
	"context"

	"github.com/appointment-watch/internal/domain"
)

// SubscriptionRepository is the minimal interface the router requires from a subscription store.
type SubscriptionRepository interface {
	// UpsertByAddress inserts sub or merges it into the record already
	// registered for the same notification address.
	UpsertByAddress(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

// AccessCodeRepository is the minimal interface the router requires from an access-code store.
type AccessCodeRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.AccessCode, error)
	UpsertByEmail(ctx context.Context, c *domain.AccessCode) (*domain.AccessCode, error)
	Delete(ctx context.Context, c *domain.AccessCode) error
}

// Mailer is the minimal interface the router requires from an outbound mail channel.
type Mailer interface {
	Send(ctx context.Context, msg domain.Message) error
}
