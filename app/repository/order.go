package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

type OrderFilter struct {
	BuyerID   string
	EventID   string
	HasStatus bool
	Status    entity.OrderStatus
	Limit     int32
	Offset    int32
}

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, order_code, buyer_id, event_id, channel, items_json,
	subtotal, commission_rate, commission_amount, payee_amount, total_amount,
	payment_link_id, checkout_url, qr_code, status,
	payout_status, payout_transaction_id, payout_error, payout_completed_at,
	payee_account_number, payee_account_name, payee_bank_bin, payee_bank_name,
	created_at, paid_at, cancelled_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	itemsJSON, err := serializeItems(order.Items)
	if err != nil {
		return err
	}

	var payeeNumber, payeeName interface{}
	var payeeBin, payeeBank interface{}
	if order.Payee != nil {
		payeeNumber = order.Payee.AccountNumber
		payeeName = order.Payee.AccountName
		payeeBin = nullableStringValue(order.Payee.BankBin)
		payeeBank = nullableStringValue(order.Payee.BankName)
	}

	query := `
		INSERT INTO orders (
			order_code, buyer_id, event_id, channel, items_json,
			subtotal, commission_rate, commission_amount, payee_amount, total_amount,
			payment_link_id, checkout_url, qr_code, status,
			payout_status, payout_transaction_id, payout_error, payout_completed_at,
			payee_account_number, payee_account_name, payee_bank_bin, payee_bank_name,
			created_at, paid_at, cancelled_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		order.OrderCode,
		order.BuyerID,
		order.EventID,
		string(order.Channel),
		itemsJSON,
		order.Subtotal,
		order.CommissionRate,
		order.CommissionAmount,
		order.PayeeAmount,
		order.TotalAmount,
		nullableStringValue(order.PaymentLinkID),
		nullableStringValue(order.CheckoutURL),
		nullableStringValue(order.QRCode),
		string(order.Status),
		string(order.PayoutStatus),
		nullableStringValue(order.PayoutTransactionID),
		nullableStringValue(order.PayoutError),
		nullableTimeValue(order.PayoutCompletedAt),
		payeeNumber,
		payeeName,
		payeeBin,
		payeeBank,
		order.CreatedAt,
		nullableTimeValue(order.PaidAt),
		nullableTimeValue(order.CancelledAt),
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = uint64(id)
	return nil
}

// SetPaymentLink records the gateway link fields and moves the order
// from pending to processing.
func (r *OrderRepository) SetPaymentLink(ctx context.Context, orderCode int64, linkID, checkoutURL, qrCode string, now time.Time) error {
	query := `
		UPDATE orders SET
			payment_link_id = ?, checkout_url = ?, qr_code = ?, status = ?, updated_at = ?
		WHERE order_code = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		linkID, checkoutURL, qrCode, string(entity.OrderStatusProcessing), now,
		orderCode, string(entity.OrderStatusPending),
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) FindByCode(ctx context.Context, orderCode int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_code = ? LIMIT 1`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, orderCode), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if strings.TrimSpace(filter.BuyerID) != "" {
		conditions = append(conditions, "buyer_id = ?")
		args = append(args, filter.BuyerID)
	}
	if strings.TrimSpace(filter.EventID) != "" {
		conditions = append(conditions, "event_id = ?")
		args = append(args, filter.EventID)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// MarkPaid is the paid-transition compare-and-set: only the caller
// that actually flips a non-terminal order to paid sees true, and only
// that caller may run the payout.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderCode int64, paidAt time.Time) (bool, error) {
	query := `
		UPDATE orders SET status = ?, paid_at = ?, updated_at = ?
		WHERE order_code = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.OrderStatusPaid), paidAt, paidAt,
		orderCode,
		string(entity.OrderStatusPending), string(entity.OrderStatusProcessing),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) MarkCancelled(ctx context.Context, orderCode int64, cancelledAt time.Time) (bool, error) {
	query := `
		UPDATE orders SET status = ?, cancelled_at = ?, updated_at = ?
		WHERE order_code = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.OrderStatusCancelled), cancelledAt, cancelledAt,
		orderCode,
		string(entity.OrderStatusPending), string(entity.OrderStatusProcessing),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) MarkExpired(ctx context.Context, orderCode int64, now time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE order_code = ?`

	result, err := r.db.ExecContext(ctx, query, string(entity.OrderStatusExpired), now, orderCode)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) UpdatePayout(ctx context.Context, orderID uint64, status entity.PayoutStatus, transactionID, payoutErr *string, completedAt *time.Time, now time.Time) error {
	query := `
		UPDATE orders SET
			payout_status = ?, payout_transaction_id = ?, payout_error = ?, payout_completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		nullableStringValue(transactionID),
		nullableStringValue(payoutErr),
		nullableTimeValue(completedAt),
		now,
		orderID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListStaleProcessing returns processing orders with a gateway link
// whose last update predates the cutoff; the reconcile sweep re-polls
// these when webhook delivery never arrived.
func (r *OrderRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int32) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status = ? AND payment_link_id IS NOT NULL AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, string(entity.OrderStatusProcessing), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// PurgeStaleUnpaid deletes non-paid orders older than the retention
// cutoff. Paid and refunded rows are never touched.
func (r *OrderRepository) PurgeStaleUnpaid(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	query := `
		DELETE FROM orders
		WHERE status NOT IN (?, ?) AND created_at <= ?
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.OrderStatusPaid), string(entity.OrderStatusRefunded),
		cutoff, limit,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var channel, status, payoutStatus string
	var itemsJSON string
	var paymentLinkID, checkoutURL, qrCode sql.NullString
	var payoutTransactionID, payoutError sql.NullString
	var payoutCompletedAt sql.NullTime
	var payeeNumber, payeeName, payeeBin, payeeBank sql.NullString
	var paidAt, cancelledAt sql.NullTime

	err := scan.Scan(
		&order.ID,
		&order.OrderCode,
		&order.BuyerID,
		&order.EventID,
		&channel,
		&itemsJSON,
		&order.Subtotal,
		&order.CommissionRate,
		&order.CommissionAmount,
		&order.PayeeAmount,
		&order.TotalAmount,
		&paymentLinkID,
		&checkoutURL,
		&qrCode,
		&status,
		&payoutStatus,
		&payoutTransactionID,
		&payoutError,
		&payoutCompletedAt,
		&payeeNumber,
		&payeeName,
		&payeeBin,
		&payeeBank,
		&order.CreatedAt,
		&paidAt,
		&cancelledAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	order.Channel = entity.Channel(channel)
	order.Status = entity.OrderStatus(status)
	order.PayoutStatus = entity.PayoutStatus(payoutStatus)
	order.PaymentLinkID = stringPtrFromNull(paymentLinkID)
	order.CheckoutURL = stringPtrFromNull(checkoutURL)
	order.QRCode = stringPtrFromNull(qrCode)
	order.PayoutTransactionID = stringPtrFromNull(payoutTransactionID)
	order.PayoutError = stringPtrFromNull(payoutError)
	order.PayoutCompletedAt = timePtrFromNull(payoutCompletedAt)
	order.PaidAt = timePtrFromNull(paidAt)
	order.CancelledAt = timePtrFromNull(cancelledAt)

	if payeeNumber.Valid && payeeNumber.String != "" {
		order.Payee = &entity.BankAccount{
			AccountNumber: payeeNumber.String,
			AccountName:   payeeName.String,
			BankBin:       stringPtrFromNull(payeeBin),
			BankName:      stringPtrFromNull(payeeBank),
		}
	}

	items, err := parseItems(itemsJSON)
	if err != nil {
		return err
	}
	order.Items = items

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
