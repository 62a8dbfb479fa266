package repository

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	// Record stores the delivery once; created is false for a redelivery.
	Record(ctx context.Context, ev *model.PaymentWebhookEvent) (created bool, err error)
	MarkProcessed(ctx context.Context, id uint64, processingErr string) error
}

type webhookEventRepository struct {
	baseRepository
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{baseRepository{db: db}}
}

func (r *webhookEventRepository) Record(ctx context.Context, ev *model.PaymentWebhookEvent) (bool, error) {
	res := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var existing model.PaymentWebhookEvent
	if err := r.conn(ctx).
		Where("provider = ? AND event_id = ?", ev.Provider, ev.EventID).
		First(&existing).Error; err != nil {
		return false, err
	}
	*ev = existing
	return false, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint64, processingErr string) error {
	now := r.db.NowFunc()
	return r.conn(ctx).
		Model(&model.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": processingErr,
		}).Error
}
