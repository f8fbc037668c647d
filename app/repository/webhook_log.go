package repository

import (
	"context"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

type WebhookLogRepository struct {
	db DBTX
}

func NewWebhookLogRepository(db DBTX) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) Create(ctx context.Context, log *entity.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (
			order_id, channel, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var orderID interface{}
	if log.OrderID != nil {
		orderID = *log.OrderID
	}

	result, err := r.db.ExecContext(ctx, query,
		orderID,
		log.Channel,
		log.PayloadJSON,
		log.Status,
		nullableStringValue(log.Error),
		log.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)

	return nil
}
