// Package events publishes domain notifications about registrations.
package events

import (
	"context"
	"time"

	"github.com/devsoc/devsoc-backend/internal/logging"
)

const (
	TypeRegistrationCreated  = "registration.created"
	TypePaymentStatusChanged = "payment.status_changed"
)

type Event struct {
	Type       string    `json:"type"`
	EventSlug  string    `json:"eventSlug"`
	UserID     string    `json:"userId,omitempty"`
	PaymentID  string    `json:"paymentId"`
	Email      string    `json:"email,omitempty"`
	Status     string    `json:"status,omitempty"`
	ActedBy    string    `json:"actedBy,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	log logging.Logger
}

func NewLogPublisher(log logging.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("module", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.log.Info(ctx, "event published",
		"type", e.Type,
		"event_slug", e.EventSlug,
		"payment_id", e.PaymentID,
		"status", e.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
