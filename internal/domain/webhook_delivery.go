package domain

import "time"

// DeliveryStatus tracks an outbound webhook delivery through the queue.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusCompleted DeliveryStatus = "completed"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// WebhookDelivery is one queued POST to a subscriber URL.
type WebhookDelivery struct {
	ID            string
	EventID       string
	EventType     string
	TicketID      string
	URL           string
	Payload       []byte
	Status        DeliveryStatus
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
