package entity

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusExpired    OrderStatus = "expired"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Terminal reports whether the lifecycle engine performs no further
// automatic transitions once this status is reached.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCancelled, OrderStatusExpired, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusSuccess PayoutStatus = "success"
	PayoutStatusFailed  PayoutStatus = "failed"
	PayoutStatusSkipped PayoutStatus = "skipped"
)

// Channel identifies which configured gateway credential set an order
// was opened under. Immutable once set.
type Channel string

const (
	ChannelDefault Channel = "default"
	ChannelMobile  Channel = "mobile"
)

type LineItem struct {
	Zone      string  `json:"zone"`
	Seat      *string `json:"seat,omitempty"`
	UnitPrice int64   `json:"unit_price"`
	Quantity  int32   `json:"quantity"`
}

type BankAccount struct {
	AccountNumber string
	AccountName   string
	BankBin       *string
	BankName      *string
}

type Order struct {
	ID uint64

	// OrderCode is the gateway-facing numeric code, distinct from the
	// storage key.
	OrderCode int64

	BuyerID string
	EventID string

	Channel Channel

	Items []LineItem

	Subtotal         int64
	CommissionRate   float64
	CommissionAmount int64
	PayeeAmount      int64
	TotalAmount      int64

	PaymentLinkID *string
	CheckoutURL   *string
	QRCode        *string

	Status OrderStatus

	PayoutStatus        PayoutStatus
	PayoutTransactionID *string
	PayoutError         *string
	PayoutCompletedAt   *time.Time

	Payee *BankAccount

	CreatedAt   time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time
	UpdatedAt   time.Time
}
