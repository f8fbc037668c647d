package service

import (
	"context"
	"time"
)

// RunPurgeStaleBatch deletes unpaid orders older than the retention
// window. Seats held by those orders become sellable again once the row
// is gone.
func (s *OrderService) RunPurgeStaleBatch(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.ordersCfg.RetentionWindow)
	purged, err := s.orderRepo.PurgeStaleUnpaid(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("purged stale unpaid orders")
	}
	return nil
}

// RunReconcileBatch re-polls the gateway for orders stuck in processing,
// covering webhooks that were lost in transit.
func (s *OrderService) RunReconcileBatch(ctx context.Context) error {
	before := time.Now().UTC().Add(-s.ordersCfg.ReconcileStaleAfter)
	items, err := s.orderRepo.ListStaleProcessing(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range items {
		if order == nil || order.PaymentLinkID == nil {
			continue
		}

		gatewayClient, err := s.channels.Get(order.Channel)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		linkStatus, err := gatewayClient.GetPaymentLinkStatus(ctx, order.OrderCode)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if err = s.applyGatewayStatus(ctx, order, linkStatus, "reconcile"); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func keepFirstErr(current, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
