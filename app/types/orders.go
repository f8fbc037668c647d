package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

type LineItemRequest struct {
	Zone     string `json:"zone"`
	Seat     string `json:"seat,omitempty"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
}

type BankAccountRequest struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankBin       string `json:"bank_bin,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

type CreateOrderRequest struct {
	BuyerID string              `json:"buyer_id"`
	EventID string              `json:"event_id"`
	Items   []LineItemRequest   `json:"items"`
	Payee   *BankAccountRequest `json:"payee,omitempty"`
	Channel string              `json:"channel,omitempty"`
}

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.BuyerID = strings.TrimSpace(body.BuyerID)
	body.EventID = strings.TrimSpace(body.EventID)
	body.Channel = strings.ToLower(strings.TrimSpace(body.Channel))
	if body.Payee != nil {
		body.Payee.AccountNumber = strings.TrimSpace(body.Payee.AccountNumber)
		body.Payee.AccountName = strings.TrimSpace(body.Payee.AccountName)
		body.Payee.BankBin = strings.TrimSpace(body.Payee.BankBin)
		body.Payee.BankName = strings.TrimSpace(body.Payee.BankName)
	}

	return &body, nil
}

func (r *CreateOrderRequest) Validate() error {
	if r.BuyerID == "" {
		return errors.New("buyer_id is required")
	}
	if r.EventID == "" {
		return errors.New("event_id is required")
	}
	if len(r.Items) == 0 {
		return errors.New("items must not be empty")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.Zone) == "" {
			return errors.New("items[" + strconv.Itoa(i) + "].zone is required")
		}
		if item.Price <= 0 {
			return errors.New("items[" + strconv.Itoa(i) + "].price must be > 0")
		}
		if item.Quantity < 1 {
			return errors.New("items[" + strconv.Itoa(i) + "].quantity must be >= 1")
		}
	}
	if r.Channel != "" && r.Channel != string(entity.ChannelDefault) && r.Channel != string(entity.ChannelMobile) {
		return errors.New("channel must be default or mobile")
	}
	if r.Payee != nil {
		if r.Payee.AccountNumber == "" {
			return errors.New("payee.account_number is required")
		}
		if r.Payee.AccountName == "" {
			return errors.New("payee.account_name is required")
		}
	}
	return nil
}

type GetOrderRequest struct {
	OrderCode int64
}

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	code, err := strconv.ParseInt(ctx.Param("code"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetOrderRequest{OrderCode: code}, nil
}

func (r *GetOrderRequest) Validate() error {
	if r.OrderCode <= 0 {
		return errors.New("invalid order code")
	}
	return nil
}

type VerifyOrderRequest struct {
	OrderCode int64
}

func NewVerifyOrderRequestFromContext(ctx echo.Context) (*VerifyOrderRequest, error) {
	code, err := strconv.ParseInt(ctx.Param("code"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &VerifyOrderRequest{OrderCode: code}, nil
}

func (r *VerifyOrderRequest) Validate() error {
	if r.OrderCode <= 0 {
		return errors.New("invalid order code")
	}
	return nil
}

type CancelOrderRequest struct {
	OrderCode int64  `json:"-"`
	Reason    string `json:"reason"`
}

func NewCancelOrderRequestFromContext(ctx echo.Context) (*CancelOrderRequest, error) {
	code, err := strconv.ParseInt(ctx.Param("code"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body CancelOrderRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.OrderCode = code
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *CancelOrderRequest) Validate() error {
	if r.OrderCode <= 0 {
		return errors.New("invalid order code")
	}
	return nil
}

type ListOrdersRequest struct {
	BuyerID   string
	EventID   string
	HasStatus bool
	Status    entity.OrderStatus
	Limit     int32
	Offset    int32
}

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	req := &ListOrdersRequest{
		BuyerID: strings.TrimSpace(ctx.QueryParam("buyer_id")),
		EventID: strings.TrimSpace(ctx.QueryParam("event_id")),
		Limit:   100,
		Offset:  0,
	}

	statusRaw := strings.ToLower(strings.TrimSpace(ctx.QueryParam("status")))
	if statusRaw != "" {
		req.HasStatus = true
		req.Status = entity.OrderStatus(statusRaw)
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListOrdersRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.HasStatus && !isValidOrderStatus(r.Status) {
		return errors.New("invalid status")
	}
	return nil
}

type LineItemResponse struct {
	Zone     string `json:"zone"`
	Seat     string `json:"seat,omitempty"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
}

type PayoutResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

type OrderResponse struct {
	ID               uint64             `json:"id"`
	OrderCode        int64              `json:"order_code"`
	BuyerID          string             `json:"buyer_id"`
	EventID          string             `json:"event_id"`
	Channel          string             `json:"channel"`
	Items            []LineItemResponse `json:"items"`
	Subtotal         int64              `json:"subtotal"`
	CommissionRate   float64            `json:"commission_rate"`
	CommissionAmount int64              `json:"commission_amount"`
	PayeeAmount      int64              `json:"payee_amount"`
	TotalAmount      int64              `json:"total_amount"`
	PaymentLinkID    string             `json:"payment_link_id,omitempty"`
	CheckoutURL      string             `json:"checkout_url,omitempty"`
	QRCode           string             `json:"qr_code,omitempty"`
	Status           string             `json:"status"`
	Payout           PayoutResponse     `json:"payout"`
	CreatedAt        string             `json:"created_at"`
	PaidAt           string             `json:"paid_at,omitempty"`
	CancelledAt      string             `json:"cancelled_at,omitempty"`
	UpdatedAt        string             `json:"updated_at"`
}

type OrderEnvelopeResponse struct {
	Order *OrderResponse `json:"order"`
}

type ListOrdersResponse struct {
	Orders []*OrderResponse `json:"orders"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func isValidOrderStatus(status entity.OrderStatus) bool {
	switch status {
	case entity.OrderStatusPending,
		entity.OrderStatusProcessing,
		entity.OrderStatusPaid,
		entity.OrderStatusCancelled,
		entity.OrderStatusExpired,
		entity.OrderStatusRefunded:
		return true
	default:
		return false
	}
}
