package entity

import "time"

const (
	WebhookLogAccepted int32 = 10
	WebhookLogRejected int32 = 20
)

type WebhookLog struct {
	ID uint64

	OrderID *uint64

	Channel     string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}
