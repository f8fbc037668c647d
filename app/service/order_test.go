package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
	"github.com/venuetix-solutions/ms-go-orders/app/gateway"
	"github.com/venuetix-solutions/ms-go-orders/app/repository"
	"github.com/venuetix-solutions/ms-go-orders/app/types"
	"github.com/venuetix-solutions/ms-go-orders/config"
)

type serviceOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*entity.Order
	nextID uint64
}

func newServiceOrderRepo() *serviceOrderRepo {
	return &serviceOrderRepo{
		orders: map[int64]*entity.Order{},
		nextID: 1,
	}
}

func (r *serviceOrderRepo) Create(_ context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.OrderCode]; ok {
		return repository.ErrOrderAlreadyExists
	}
	id := r.nextID
	r.nextID++
	copyItem := *order
	copyItem.ID = id
	r.orders[order.OrderCode] = &copyItem
	order.ID = id
	return nil
}

func (r *serviceOrderRepo) SetPaymentLink(_ context.Context, orderCode int64, linkID, checkoutURL, qrCode string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderCode]
	if !ok || order.Status != entity.OrderStatusPending {
		return nil
	}
	order.PaymentLinkID = &linkID
	order.CheckoutURL = &checkoutURL
	if qrCode != "" {
		order.QRCode = &qrCode
	}
	order.Status = entity.OrderStatusProcessing
	order.UpdatedAt = now
	return nil
}

func (r *serviceOrderRepo) FindByCode(_ context.Context, orderCode int64) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderCode]
	if !ok {
		return nil, nil
	}
	copyItem := *order
	return &copyItem, nil
}

func (r *serviceOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, order := range r.orders {
		if filter.BuyerID != "" && order.BuyerID != filter.BuyerID {
			continue
		}
		if filter.EventID != "" && order.EventID != filter.EventID {
			continue
		}
		if filter.HasStatus && order.Status != filter.Status {
			continue
		}
		copyItem := *order
		items = append(items, &copyItem)
	}
	return items, nil
}

func (r *serviceOrderRepo) MarkPaid(_ context.Context, orderCode int64, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderCode]
	if !ok {
		return false, nil
	}
	if order.Status != entity.OrderStatusPending && order.Status != entity.OrderStatusProcessing {
		return false, nil
	}
	order.Status = entity.OrderStatusPaid
	order.PaidAt = &paidAt
	order.UpdatedAt = paidAt
	return true, nil
}

func (r *serviceOrderRepo) MarkCancelled(_ context.Context, orderCode int64, cancelledAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderCode]
	if !ok {
		return false, nil
	}
	if order.Status != entity.OrderStatusPending && order.Status != entity.OrderStatusProcessing {
		return false, nil
	}
	order.Status = entity.OrderStatusCancelled
	order.CancelledAt = &cancelledAt
	order.UpdatedAt = cancelledAt
	return true, nil
}

func (r *serviceOrderRepo) MarkExpired(_ context.Context, orderCode int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderCode]
	if !ok {
		return false, nil
	}
	if order.Status == entity.OrderStatusExpired {
		return false, nil
	}
	order.Status = entity.OrderStatusExpired
	order.UpdatedAt = now
	return true, nil
}

func (r *serviceOrderRepo) UpdatePayout(_ context.Context, orderID uint64, status entity.PayoutStatus, transactionID, payoutErr *string, completedAt *time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == orderID {
			order.PayoutStatus = status
			order.PayoutTransactionID = transactionID
			order.PayoutError = payoutErr
			order.PayoutCompletedAt = completedAt
			order.UpdatedAt = now
			return nil
		}
	}
	return nil
}

func (r *serviceOrderRepo) ListStaleProcessing(_ context.Context, before time.Time, limit int32) ([]*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, order := range r.orders {
		if order.Status == entity.OrderStatusProcessing && order.PaymentLinkID != nil && !order.UpdatedAt.After(before) {
			copyItem := *order
			items = append(items, &copyItem)
		}
		if limit > 0 && int32(len(items)) >= limit {
			break
		}
	}
	return items, nil
}

func (r *serviceOrderRepo) PurgeStaleUnpaid(_ context.Context, cutoff time.Time, limit int32) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for code, order := range r.orders {
		if order.Status == entity.OrderStatusPaid || order.Status == entity.OrderStatusRefunded {
			continue
		}
		if order.CreatedAt.After(cutoff) {
			continue
		}
		delete(r.orders, code)
		purged++
		if limit > 0 && purged >= int64(limit) {
			break
		}
	}
	return purged, nil
}

type serviceEventRepo struct {
	mu     sync.Mutex
	events []*entity.OrderEvent
}

func (r *serviceEventRepo) Create(_ context.Context, event *entity.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *serviceEventRepo) countByType(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

type serviceWebhookRepo struct {
	mu   sync.Mutex
	logs []*entity.WebhookLog
}

func (r *serviceWebhookRepo) Create(_ context.Context, log *entity.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *log
	r.logs = append(r.logs, &copyItem)
	return nil
}

type fakeGateway struct {
	mu         sync.Mutex
	channel    entity.Channel
	createErr  error
	linkStatus gateway.LinkStatus
	statusErr  error
	cancelErr  error
	cancelled  []int64
	onCancel   func()
	secret     string
}

func (g *fakeGateway) Channel() entity.Channel {
	return g.channel
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, input *gateway.CreateLinkInput) (*gateway.CreateLinkOutput, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.CreateLinkOutput{
		PaymentLinkID: fmt.Sprintf("link-%d", input.OrderCode),
		CheckoutURL:   fmt.Sprintf("https://pay.example/web/link-%d", input.OrderCode),
		QRCode:        "qr-data",
	}, nil
}

func (g *fakeGateway) GetPaymentLinkStatus(_ context.Context, _ int64) (gateway.LinkStatus, error) {
	if g.statusErr != nil {
		return "", g.statusErr
	}
	if g.linkStatus == "" {
		return gateway.LinkStatusPending, nil
	}
	return g.linkStatus, nil
}

func (g *fakeGateway) CancelPaymentLink(_ context.Context, orderCode int64, _ string) error {
	if g.onCancel != nil {
		g.onCancel()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, orderCode)
	return nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var body struct {
		Secret    string `json:"secret"`
		OrderCode int64  `json:"order_code"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	if body.Secret != g.secret {
		return nil, gateway.ErrBadSignature
	}
	return &gateway.WebhookEvent{
		OrderCode: body.OrderCode,
		Status:    gateway.LinkStatus(body.Status),
	}, nil
}

func webhookPayload(secret string, orderCode int64, status gateway.LinkStatus) []byte {
	return []byte(fmt.Sprintf(`{"secret":%q,"order_code":%d,"status":%q}`, secret, orderCode, status))
}

type fakeTransferClient struct {
	mu         sync.Mutex
	configured bool
	err        error
	calls      int
}

func (c *fakeTransferClient) Configured() bool {
	return c.configured
}

func (c *fakeTransferClient) Transfer(_ context.Context, _ *gateway.TransferInput) (*gateway.TransferOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &gateway.TransferOutput{Reference: "ref-1", TransactionID: fmt.Sprintf("txn-%d", c.calls)}, nil
}

func (c *fakeTransferClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type serviceFixture struct {
	svc       *OrderService
	orderRepo *serviceOrderRepo
	eventRepo *serviceEventRepo
	logRepo   *serviceWebhookRepo
	primary   *fakeGateway
	mobile    *fakeGateway
	transfers *fakeTransferClient
}

func newOrderServiceForTest() *serviceFixture {
	orderRepo := newServiceOrderRepo()
	eventRepo := &serviceEventRepo{}
	logRepo := &serviceWebhookRepo{}
	primary := &fakeGateway{channel: entity.ChannelDefault, secret: "primary-secret"}
	mobile := &fakeGateway{channel: entity.ChannelMobile, secret: "mobile-secret"}
	transfers := &fakeTransferClient{configured: true}

	svc := NewOrderService(
		orderRepo,
		eventRepo,
		logRepo,
		gateway.NewChannelSet(primary, mobile),
		transfers,
		config.OrdersConfig{
			CommissionRate:      0.05,
			RetentionWindow:     5 * time.Minute,
			ReconcileStaleAfter: 2 * time.Minute,
			JobBatchSize:        100,
		},
		"https://shop.example/payments",
	)

	return &serviceFixture{
		svc:       svc,
		orderRepo: orderRepo,
		eventRepo: eventRepo,
		logRepo:   logRepo,
		primary:   primary,
		mobile:    mobile,
		transfers: transfers,
	}
}

func createOrderRequest() *types.CreateOrderRequest {
	return &types.CreateOrderRequest{
		BuyerID: "buyer-1",
		EventID: "evt-1",
		Items: []types.LineItemRequest{
			{Zone: "A", Seat: "A-1", Price: 100, Quantity: 2},
			{Zone: "B", Price: 50, Quantity: 1},
		},
		Payee: &types.BankAccountRequest{
			AccountNumber: "0011002233",
			AccountName:   "ACME EVENTS",
		},
	}
}

func mustCreateOrder(t *testing.T, fx *serviceFixture) *entity.Order {
	t.Helper()
	order, err := fx.svc.CreateOrder(context.Background(), createOrderRequest())
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestCreateOrderComputesAmounts(t *testing.T) {
	fx := newOrderServiceForTest()

	order := mustCreateOrder(t, fx)

	if order.Subtotal != 250 || order.TotalAmount != 250 {
		t.Fatalf("unexpected subtotal: %+v", order)
	}
	if order.CommissionAmount != 13 {
		t.Fatalf("expected commission 13, got %d", order.CommissionAmount)
	}
	if order.PayeeAmount != 237 {
		t.Fatalf("expected payee amount 237, got %d", order.PayeeAmount)
	}
	if order.CommissionAmount+order.PayeeAmount != order.Subtotal {
		t.Fatalf("commission and payee amounts must sum to subtotal: %+v", order)
	}
	if order.Status != entity.OrderStatusProcessing {
		t.Fatalf("expected processing status, got %s", order.Status)
	}
	if order.PaymentLinkID == nil || order.CheckoutURL == nil {
		t.Fatalf("expected payment link data on order: %+v", order)
	}
	if order.Channel != entity.ChannelDefault {
		t.Fatalf("expected default channel, got %s", order.Channel)
	}
}

func TestCreateOrderRejectsInvalidRequest(t *testing.T) {
	fx := newOrderServiceForTest()

	_, err := fx.svc.CreateOrder(context.Background(), &types.CreateOrderRequest{BuyerID: "buyer-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateOrderRejectsUnknownChannel(t *testing.T) {
	fx := newOrderServiceForTest()

	req := createOrderRequest()
	req.Channel = "kiosk"
	_, err := fx.svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateOrderGatewayFailureLeavesPendingOrder(t *testing.T) {
	fx := newOrderServiceForTest()
	fx.primary.createErr = errors.New("gateway unavailable")

	_, err := fx.svc.CreateOrder(context.Background(), createOrderRequest())
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}

	orders, err := fx.svc.ListOrders(context.Background(), &types.ListOrdersRequest{BuyerID: "buyer-1"})
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != entity.OrderStatusPending {
		t.Fatalf("expected one pending order left behind, got %+v", orders)
	}
}

func TestCreateOrderUsesMobileChannel(t *testing.T) {
	fx := newOrderServiceForTest()

	req := createOrderRequest()
	req.Channel = "mobile"
	order, err := fx.svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Channel != entity.ChannelMobile {
		t.Fatalf("expected mobile channel, got %s", order.Channel)
	}
}

func TestNewOrderCodesAreUnique(t *testing.T) {
	seen := make(map[int64]struct{}, 10_000)
	for i := 0; i < 10_000; i++ {
		code := newOrderCode()
		if code <= 0 {
			t.Fatalf("expected positive order code, got %d", code)
		}
		if _, ok := seen[code]; ok {
			t.Fatalf("duplicate order code generated: %d", code)
		}
		seen[code] = struct{}{}
	}
}

func TestGetOrderNotFound(t *testing.T) {
	fx := newOrderServiceForTest()

	_, err := fx.svc.GetOrder(context.Background(), 42)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelOrderAfterPaidIsInvalidStatus(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)

	if err := fx.svc.HandleWebhook(context.Background(), webhookPayload("primary-secret", order.OrderCode, gateway.LinkStatusPaid)); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	_, err := fx.svc.CancelOrder(context.Background(), &types.CancelOrderRequest{OrderCode: order.OrderCode})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCancelOrderCancelsGatewayLink(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)

	cancelled, err := fx.svc.CancelOrder(context.Background(), &types.CancelOrderRequest{OrderCode: order.OrderCode, Reason: "changed plans"})
	if err != nil {
		t.Fatalf("cancel order failed: %v", err)
	}
	if cancelled.Status != entity.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if len(fx.primary.cancelled) != 1 || fx.primary.cancelled[0] != order.OrderCode {
		t.Fatalf("expected gateway link cancellation, got %v", fx.primary.cancelled)
	}
}

func TestCancelOrderSucceedsWhenGatewayCancelFails(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)
	fx.primary.cancelErr = errors.New("gateway unavailable")

	cancelled, err := fx.svc.CancelOrder(context.Background(), &types.CancelOrderRequest{OrderCode: order.OrderCode})
	if err != nil {
		t.Fatalf("cancel order failed: %v", err)
	}
	if cancelled.Status != entity.OrderStatusCancelled {
		t.Fatalf("expected cancelled status despite gateway failure, got %s", cancelled.Status)
	}
}

func TestCancelOrderLosingPaidRaceIsInvalidStatus(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)

	// A webhook lands between the status read and the cancel write.
	fx.primary.onCancel = func() {
		if _, err := fx.orderRepo.MarkPaid(context.Background(), order.OrderCode, time.Now().UTC()); err != nil {
			t.Errorf("mark paid failed: %v", err)
		}
	}

	_, err := fx.svc.CancelOrder(context.Background(), &types.CancelOrderRequest{OrderCode: order.OrderCode})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	fresh, err := fx.svc.GetOrder(context.Background(), order.OrderCode)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if fresh.Status != entity.OrderStatusPaid {
		t.Fatalf("expected paid status to stick, got %s", fresh.Status)
	}
}

func TestVerifyOrderAppliesPaidStatusAndTriggersPayout(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)
	fx.primary.linkStatus = gateway.LinkStatusPaid

	verified, err := fx.svc.VerifyOrder(context.Background(), order.OrderCode)
	if err != nil {
		t.Fatalf("verify order failed: %v", err)
	}
	if verified.Status != entity.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", verified.Status)
	}
	if verified.PayoutStatus != entity.PayoutStatusSuccess {
		t.Fatalf("expected successful payout, got %s", verified.PayoutStatus)
	}
	if fx.transfers.callCount() != 1 {
		t.Fatalf("expected exactly one transfer, got %d", fx.transfers.callCount())
	}
}

func TestVerifyOrderReturnsTerminalOrderWithoutPolling(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)

	if err := fx.svc.HandleWebhook(context.Background(), webhookPayload("primary-secret", order.OrderCode, gateway.LinkStatusPaid)); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	fx.primary.statusErr = errors.New("gateway must not be polled")
	verified, err := fx.svc.VerifyOrder(context.Background(), order.OrderCode)
	if err != nil {
		t.Fatalf("verify order failed: %v", err)
	}
	if verified.Status != entity.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", verified.Status)
	}
}

func TestVerifyOrderGatewayFailure(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)
	fx.primary.statusErr = errors.New("gateway unavailable")

	_, err := fx.svc.VerifyOrder(context.Background(), order.OrderCode)
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	fx := newOrderServiceForTest()
	order := mustCreateOrder(t, fx)

	req := createOrderRequest()
	req.BuyerID = "buyer-2"
	if _, err := fx.svc.CreateOrder(context.Background(), req); err != nil {
		t.Fatalf("create second order failed: %v", err)
	}

	if err := fx.svc.HandleWebhook(context.Background(), webhookPayload("primary-secret", order.OrderCode, gateway.LinkStatusPaid)); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	paid, err := fx.svc.ListOrders(context.Background(), &types.ListOrdersRequest{HasStatus: true, Status: entity.OrderStatusPaid})
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(paid) != 1 || paid[0].OrderCode != order.OrderCode {
		t.Fatalf("unexpected paid list: %+v", paid)
	}
}
