package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

// HandleWebhook verifies a gateway notification against every configured
// channel's checksum key and applies the resulting lifecycle transition.
// Only a signature failure is surfaced to the caller; anything that goes
// wrong after the payload is authenticated is logged and acknowledged so
// the gateway does not retry indefinitely.
func (s *OrderService) HandleWebhook(ctx context.Context, payload []byte) error {
	channel, event, err := s.channels.Verify(payload)
	if err != nil {
		s.persistWebhookLog(ctx, nil, string(channel), payload, entity.WebhookLogRejected,
			fmt.Sprintf("webhook signature verification failed: %v", err))
		return ErrWebhookRejected
	}

	logger := s.logger.WithFields(logrus.Fields{
		"order_code": event.OrderCode,
		"channel":    string(channel),
		"status":     string(event.Status),
	})

	order, err := s.orderRepo.FindByCode(ctx, event.OrderCode)
	if err != nil {
		logger.WithError(err).Error("webhook order lookup failed")
		s.persistWebhookLog(ctx, nil, string(channel), payload, entity.WebhookLogAccepted, "")
		return nil
	}
	if order == nil {
		logger.Warn("webhook references unknown order code")
		s.persistWebhookLog(ctx, nil, string(channel), payload, entity.WebhookLogAccepted, "")
		return nil
	}

	if order.Channel != channel {
		logger.WithField("order_channel", string(order.Channel)).
			Warn("webhook verified by a different channel than the order was opened under")
	}

	if err = s.applyGatewayStatus(ctx, order, event.Status, "webhook"); err != nil {
		logger.WithError(err).Error("webhook lifecycle transition failed")
	}

	orderID := order.ID
	s.persistWebhookLog(ctx, &orderID, string(channel), payload, entity.WebhookLogAccepted, "")

	return nil
}

func (s *OrderService) persistWebhookLog(ctx context.Context, orderID *uint64, channel string, payload []byte, status int32, reason string) {
	payloadJSON := string(payload)

	var errPtr *string
	if reason != "" {
		trimmed := truncate(reason, 1024)
		errPtr = &trimmed
	}

	_ = s.webhookRepo.Create(ctx, &entity.WebhookLog{
		OrderID:     orderID,
		Channel:     channel,
		PayloadJSON: payloadJSON,
		Status:      status,
		Error:       errPtr,
		CreatedAt:   time.Now().UTC(),
	})
}
