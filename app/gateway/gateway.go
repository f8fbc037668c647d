package gateway

import (
	"context"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "PENDING"
	LinkStatusProcessing LinkStatus = "PROCESSING"
	LinkStatusPaid       LinkStatus = "PAID"
	LinkStatusCancelled  LinkStatus = "CANCELLED"
	LinkStatusExpired    LinkStatus = "EXPIRED"
)

type LinkItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
}

type CreateLinkInput struct {
	OrderCode   int64
	Amount      int64
	Description string
	Items       []LinkItem
	ReturnURL   string
	CancelURL   string
}

type CreateLinkOutput struct {
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
}

// WebhookEvent is the canonical event data extracted from a verified
// gateway webhook payload.
type WebhookEvent struct {
	OrderCode     int64
	PaymentLinkID string
	Status        LinkStatus
	Reference     string
}

// PaymentGateway wraps one merchant credential set at the payment
// gateway. Every call is a synchronous request/response.
type PaymentGateway interface {
	Channel() entity.Channel
	CreatePaymentLink(ctx context.Context, input *CreateLinkInput) (*CreateLinkOutput, error)
	GetPaymentLinkStatus(ctx context.Context, orderCode int64) (LinkStatus, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
	VerifyWebhook(payload []byte) (*WebhookEvent, error)
}
