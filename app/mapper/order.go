package mapper

import (
	"time"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
	"github.com/venuetix-solutions/ms-go-orders/app/types"
)

func OrderToResponse(item *entity.Order) *types.OrderResponse {
	if item == nil {
		return nil
	}

	return &types.OrderResponse{
		ID:               item.ID,
		OrderCode:        item.OrderCode,
		BuyerID:          item.BuyerID,
		EventID:          item.EventID,
		Channel:          string(item.Channel),
		Items:            lineItemsToResponse(item.Items),
		Subtotal:         item.Subtotal,
		CommissionRate:   item.CommissionRate,
		CommissionAmount: item.CommissionAmount,
		PayeeAmount:      item.PayeeAmount,
		TotalAmount:      item.TotalAmount,
		PaymentLinkID:    derefString(item.PaymentLinkID),
		CheckoutURL:      derefString(item.CheckoutURL),
		QRCode:           derefString(item.QRCode),
		Status:           string(item.Status),
		Payout: types.PayoutResponse{
			Status:        string(item.PayoutStatus),
			TransactionID: derefString(item.PayoutTransactionID),
			Error:         derefString(item.PayoutError),
			CompletedAt:   formatOptionalTime(item.PayoutCompletedAt),
		},
		CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
		PaidAt:      formatOptionalTime(item.PaidAt),
		CancelledAt: formatOptionalTime(item.CancelledAt),
		UpdatedAt:   item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func OrdersToResponse(items []*entity.Order) []*types.OrderResponse {
	result := make([]*types.OrderResponse, 0, len(items))
	for _, item := range items {
		result = append(result, OrderToResponse(item))
	}
	return result
}

func lineItemsToResponse(items []entity.LineItem) []types.LineItemResponse {
	result := make([]types.LineItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, types.LineItemResponse{
			Zone:     item.Zone,
			Seat:     derefString(item.Seat),
			Price:    item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatOptionalTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
