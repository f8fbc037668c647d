package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
	"github.com/venuetix-solutions/ms-go-orders/app/gateway"
)

// runPayout transfers the payee amount for an order that just became
// paid. It is invoked only by the actor that won the paid transition, so
// it runs at most once per order. Failures are recorded on the order and
// never unwind the paid status or propagate to the caller.
func (s *OrderService) runPayout(ctx context.Context, order *entity.Order) {
	now := time.Now().UTC()
	logger := s.logger.WithField("order_code", order.OrderCode)

	skip := func(reason string) {
		trimmed := truncate(reason, 1024)
		if err := s.orderRepo.UpdatePayout(ctx, order.ID, entity.PayoutStatusSkipped, nil, &trimmed, nil, now); err != nil {
			logger.WithError(err).Error("recording skipped payout failed")
			return
		}
		order.PayoutStatus = entity.PayoutStatusSkipped
		order.PayoutError = &trimmed

		_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
			OrderID:   order.ID,
			EventType: "payout_skipped",
			NewStatus: order.Status,
			CreatedAt: now,
		})
		logger.WithField("reason", trimmed).Info("payout skipped")
	}

	if order.PayeeAmount <= 0 {
		skip("payee amount is not positive")
		return
	}
	if order.Payee == nil || strings.TrimSpace(order.Payee.AccountNumber) == "" || strings.TrimSpace(order.Payee.AccountName) == "" {
		skip("payee bank destination is missing")
		return
	}
	if s.transfers == nil || !s.transfers.Configured() {
		skip("bank transfer integration is not configured")
		return
	}

	output, err := s.transfers.Transfer(ctx, &gateway.TransferInput{
		Destination: *order.Payee,
		Amount:      order.PayeeAmount,
		Description: truncate(fmt.Sprintf("payout order %d", order.OrderCode), 100),
	})
	if err != nil {
		msg := truncate(err.Error(), 1024)
		if updateErr := s.orderRepo.UpdatePayout(ctx, order.ID, entity.PayoutStatusFailed, nil, &msg, nil, now); updateErr != nil {
			logger.WithError(updateErr).Error("recording failed payout failed")
			return
		}
		order.PayoutStatus = entity.PayoutStatusFailed
		order.PayoutError = &msg

		_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
			OrderID:   order.ID,
			EventType: "payout_failed",
			NewStatus: order.Status,
			CreatedAt: now,
		})
		logger.WithError(err).Error("payout transfer failed")
		return
	}

	completedAt := time.Now().UTC()
	transactionID := output.TransactionID
	if err = s.orderRepo.UpdatePayout(ctx, order.ID, entity.PayoutStatusSuccess, &transactionID, nil, &completedAt, completedAt); err != nil {
		logger.WithError(err).Error("recording successful payout failed")
		return
	}
	order.PayoutStatus = entity.PayoutStatusSuccess
	order.PayoutTransactionID = &transactionID
	order.PayoutCompletedAt = &completedAt

	_ = s.eventRepo.Create(ctx, &entity.OrderEvent{
		OrderID:   order.ID,
		EventType: "payout_succeeded",
		NewStatus: order.Status,
		CreatedAt: completedAt,
	})
	logger.WithField("transaction_id", transactionID).Info("payout completed")
}
