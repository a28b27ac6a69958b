// Package dispatch turns a matched slot into an outbound alert.
package dispatch

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/appointment-watch/internal/domain"
)

const Subject = "New Appointment Alert!"

// Sender hands a message to a delivery channel. Send returns once the channel
// accepted the message.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) error
}

type Dispatcher struct {
	sender Sender
	now    func() time.Time
}

func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, now: time.Now}
}

// WithClock replaces the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch sends the alert for slot to the subscription's notification address.
// It does not touch the quota.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *domain.Subscription, slot domain.Slot) (domain.Sent, error) {
	now := d.now()
	msg := domain.Message{
		To:      sub.NotificationAddress,
		Subject: Subject,
		HTML:    Body(slot, now),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return domain.Sent{}, &domain.DispatchError{SubscriptionID: sub.RowID, To: msg.To, Err: err}
	}
	return domain.Sent{To: msg.To, SentAt: now}, nil
}

// Body renders the alert text. The day count is truncated toward zero.
func Body(slot domain.Slot, now time.Time) string {
	days := DaysUntil(slot.Date, now)
	return fmt.Sprintf("<p>Appointment found at %s (after %d days)</p>",
		html.EscapeString(slot.Date.Format("02/Jan/2006")), days)
}

func DaysUntil(date, now time.Time) int {
	return int(date.Sub(now).Hours() / 24)
}

// DryRunSender logs messages instead of sending them.
type DryRunSender struct {
	Logger *slog.Logger
}

func (s DryRunSender) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry run: alert not sent", "to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}
