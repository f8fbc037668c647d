package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
	"github.com/venuetix-solutions/ms-go-orders/app/factory"
	"github.com/venuetix-solutions/ms-go-orders/app/gateway"
	"github.com/venuetix-solutions/ms-go-orders/app/repository"
	"github.com/venuetix-solutions/ms-go-orders/app/types"
	"github.com/venuetix-solutions/ms-go-orders/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)

	// PayOS rejects descriptions longer than 25 characters.
	maxDescriptionLen = 25
)

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	SetPaymentLink(ctx context.Context, orderCode int64, linkID, checkoutURL, qrCode string, now time.Time) error
	FindByCode(ctx context.Context, orderCode int64) (*entity.Order, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error)
	MarkPaid(ctx context.Context, orderCode int64, paidAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, orderCode int64, cancelledAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, orderCode int64, now time.Time) (bool, error)
	UpdatePayout(ctx context.Context, orderID uint64, status entity.PayoutStatus, transactionID, payoutErr *string, completedAt *time.Time, now time.Time) error
	ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.Order, error)
	PurgeStaleUnpaid(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

type orderEventRepository interface {
	Create(ctx context.Context, event *entity.OrderEvent) error
}

type webhookLogRepository interface {
	Create(ctx context.Context, log *entity.WebhookLog) error
}

type bankTransferClient interface {
	Configured() bool
	Transfer(ctx context.Context, input *gateway.TransferInput) (*gateway.TransferOutput, error)
}

type OrderService struct {
	orderRepo   orderRepository
	eventRepo   orderEventRepository
	webhookRepo webhookLogRepository
	channels    *gateway.ChannelSet
	transfers   bankTransferClient
	ordersCfg   config.OrdersConfig
	redirectURL string
	logger      logrus.FieldLogger
}

func NewOrderService(
	orderRepo orderRepository,
	eventRepo orderEventRepository,
	webhookRepo webhookLogRepository,
	channels *gateway.ChannelSet,
	transfers bankTransferClient,
	ordersCfg config.OrdersConfig,
	redirectURL string,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		webhookRepo: webhookRepo,
		channels:    channels,
		transfers:   transfers,
		ordersCfg:   ordersCfg,
		redirectURL: strings.TrimRight(strings.TrimSpace(redirectURL), "/"),
		logger:      factory.NewModuleLogger("order-service"),
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, req *types.CreateOrderRequest) (*entity.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	channel := entity.ChannelDefault
	if req.Channel != "" {
		channel = entity.Channel(req.Channel)
	}

	gatewayClient, err := s.channels.Get(channel)
	if err != nil {
		if errors.Is(err, gateway.ErrChannelNotConfigured) {
			return nil, fmt.Errorf("%w: channel %s is not configured", ErrInvalidRequest, channel)
		}
		return nil, err
	}

	items := make([]entity.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, entity.LineItem{
			Zone:      strings.TrimSpace(item.Zone),
			Seat:      normalizeOptionalString(item.Seat),
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		})
	}

	rate := s.commissionRate()
	subtotal, commission, payeeAmount := computeAmounts(items, rate)

	now := time.Now().UTC()
	order := &entity.Order{
		OrderCode:        newOrderCode(),
		BuyerID:          req.BuyerID,
		EventID:          req.EventID,
		Channel:          channel,
		Items:            items,
		Subtotal:         subtotal,
		CommissionRate:   rate,
		CommissionAmount: commission,
		PayeeAmount:      payeeAmount,
		TotalAmount:      subtotal,
		Status:           entity.OrderStatusPending,
		PayoutStatus:     entity.PayoutStatusPending,
		Payee:            payeeFromRequest(req.Payee),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err = s.orderRepo.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			return nil, ErrOrderAlreadyExists
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		EventType: "order_created",
		NewStatus: order.Status,
		CreatedAt: now,
	})

	linkOutput, err := gatewayClient.CreatePaymentLink(ctx, &gateway.CreateLinkInput{
		OrderCode:   order.OrderCode,
		Amount:      order.TotalAmount,
		Description: truncate(fmt.Sprintf("ORDER %d", order.OrderCode), maxDescriptionLen),
		Items:       linkItemsFromOrder(order),
		ReturnURL:   s.redirect(channel, "success", order.OrderCode),
		CancelURL:   s.redirect(channel, "cancel", order.OrderCode),
	})
	if err != nil {
		// The pending row is left behind for the purge sweep to reap.
		s.logger.WithError(err).WithField("order_code", order.OrderCode).
			Warn("payment link creation failed")
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	linkedAt := time.Now().UTC()
	if err = s.orderRepo.SetPaymentLink(ctx, order.OrderCode, linkOutput.PaymentLinkID, linkOutput.CheckoutURL, linkOutput.QRCode, linkedAt); err != nil {
		return nil, err
	}

	oldStatus := order.Status
	order.Status = entity.OrderStatusProcessing
	order.PaymentLinkID = &linkOutput.PaymentLinkID
	order.CheckoutURL = &linkOutput.CheckoutURL
	order.QRCode = normalizeOptionalString(linkOutput.QRCode)
	order.UpdatedAt = linkedAt

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		EventType: "payment_link_created",
		OldStatus: &oldStatus,
		NewStatus: order.Status,
		CreatedAt: linkedAt,
	})

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderCode int64) (*entity.Order, error) {
	order, err := s.orderRepo.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, req *types.ListOrdersRequest) ([]*entity.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.OrderFilter{
		BuyerID:   req.BuyerID,
		EventID:   req.EventID,
		HasStatus: req.HasStatus,
		Status:    req.Status,
		Limit:     limit,
		Offset:    req.Offset,
	}

	return s.orderRepo.List(ctx, filter)
}

func (s *OrderService) CancelOrder(ctx context.Context, req *types.CancelOrderRequest) (*entity.Order, error) {
	order, err := s.orderRepo.FindByCode(ctx, req.OrderCode)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == entity.OrderStatusPaid {
		return nil, fmt.Errorf("%w: paid orders cannot be cancelled", ErrInvalidStatus)
	}
	if order.Status.Terminal() {
		return order, nil
	}

	if order.PaymentLinkID != nil {
		reason := req.Reason
		if reason == "" {
			reason = "cancelled by buyer"
		}
		if gatewayClient, gwErr := s.channels.Get(order.Channel); gwErr == nil {
			if cancelErr := gatewayClient.CancelPaymentLink(ctx, order.OrderCode, reason); cancelErr != nil {
				s.logger.WithError(cancelErr).WithField("order_code", order.OrderCode).
					Warn("gateway payment link cancellation failed")
			}
		}
	}

	now := time.Now().UTC()
	won, err := s.orderRepo.MarkCancelled(ctx, order.OrderCode, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race against a webhook or poll.
		fresh, freshErr := s.GetOrder(ctx, order.OrderCode)
		if freshErr != nil {
			return nil, freshErr
		}
		if fresh.Status == entity.OrderStatusPaid {
			return nil, fmt.Errorf("%w: paid orders cannot be cancelled", ErrInvalidStatus)
		}
		return fresh, nil
	}

	oldStatus := order.Status
	order.Status = entity.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		EventType: "order_cancelled",
		OldStatus: &oldStatus,
		NewStatus: order.Status,
		CreatedAt: now,
	})

	return order, nil
}

// VerifyOrder polls the gateway for the current payment link state and
// applies any resulting transition before returning the order.
func (s *OrderService) VerifyOrder(ctx context.Context, orderCode int64) (*entity.Order, error) {
	order, err := s.orderRepo.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status.Terminal() || order.PaymentLinkID == nil {
		return order, nil
	}

	gatewayClient, err := s.channels.Get(order.Channel)
	if err != nil {
		return nil, err
	}

	linkStatus, err := gatewayClient.GetPaymentLinkStatus(ctx, order.OrderCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if err = s.applyGatewayStatus(ctx, order, linkStatus, "poll"); err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, order.OrderCode)
}

// applyGatewayStatus maps a gateway link status onto the order lifecycle.
// PAID and CANCELLED go through guarded repository updates so that only
// one of the racing actors (webhook, poll, reconcile job) observes the
// transition; the winner of PAID triggers the payout.
func (s *OrderService) applyGatewayStatus(ctx context.Context, order *entity.Order, status gateway.LinkStatus, source string) error {
	now := time.Now().UTC()
	oldStatus := order.Status

	switch status {
	case gateway.LinkStatusPaid:
		won, err := s.orderRepo.MarkPaid(ctx, order.OrderCode, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		order.Status = entity.OrderStatusPaid
		order.PaidAt = &now
		order.UpdatedAt = now

		_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
			OrderID:   order.ID,
			EventType: "order_paid",
			OldStatus: &oldStatus,
			NewStatus: order.Status,
			CreatedAt: now,
		})

		s.runPayout(ctx, order)

	case gateway.LinkStatusCancelled:
		won, err := s.orderRepo.MarkCancelled(ctx, order.OrderCode, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		order.Status = entity.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now

		_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
			OrderID:   order.ID,
			EventType: "order_cancelled",
			OldStatus: &oldStatus,
			NewStatus: order.Status,
			CreatedAt: now,
		})

	case gateway.LinkStatusExpired:
		if _, err := s.orderRepo.MarkExpired(ctx, order.OrderCode, now); err != nil {
			return err
		}
		if order.Status == entity.OrderStatusExpired {
			return nil
		}

		order.Status = entity.OrderStatusExpired
		order.UpdatedAt = now

		_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
			OrderID:   order.ID,
			EventType: "order_expired",
			OldStatus: &oldStatus,
			NewStatus: order.Status,
			CreatedAt: now,
		})

	default:
		s.logger.WithFields(logrus.Fields{
			"order_code": order.OrderCode,
			"status":     string(status),
			"source":     source,
		}).Debug("no lifecycle transition for gateway status")
	}

	return nil
}

func (s *OrderService) commissionRate() float64 {
	if s.ordersCfg.CommissionRate > 0 {
		return s.ordersCfg.CommissionRate
	}
	return 0.05
}

func (s *OrderService) batchSize() int32 {
	if s.ordersCfg.JobBatchSize > 0 {
		return s.ordersCfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *OrderService) redirect(channel entity.Channel, outcome string, orderCode int64) string {
	if s.redirectURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s?orderCode=%d", s.redirectURL, channel, outcome, orderCode)
}

func computeAmounts(items []entity.LineItem, rate float64) (subtotal, commission, payeeAmount int64) {
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	commission = int64(math.Round(float64(subtotal) * rate))
	payeeAmount = subtotal - commission
	return subtotal, commission, payeeAmount
}

func payeeFromRequest(req *types.BankAccountRequest) *entity.BankAccount {
	if req == nil {
		return nil
	}
	return &entity.BankAccount{
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		BankBin:       normalizeOptionalString(req.BankBin),
		BankName:      normalizeOptionalString(req.BankName),
	}
}

func linkItemsFromOrder(order *entity.Order) []gateway.LinkItem {
	items := make([]gateway.LinkItem, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.Zone
		if item.Seat != nil {
			name = item.Zone + " " + *item.Seat
		}
		items = append(items, gateway.LinkItem{
			Name:     name,
			Price:    item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	return items
}

var lastOrderCode atomic.Int64

// newOrderCode derives a numeric code from the current millisecond clock
// plus a random suffix, bumped past the previously issued code so that
// codes are strictly increasing within a process.
func newOrderCode() int64 {
	candidate := time.Now().UnixMilli()%1_000_000_000*1000 + rand.Int63n(1000)
	for {
		last := lastOrderCode.Load()
		if candidate <= last {
			candidate = last + 1
		}
		if lastOrderCode.CompareAndSwap(last, candidate) {
			return candidate
		}
	}
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
