package repository

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByMembershipPurchase(ctx context.Context, userUID string, purchaseID uint64) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
}

type notificationRepository struct {
	baseRepository
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{baseRepository{db: db}}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.conn(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	var list []model.Notification
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := r.conn(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	now := r.db.NowFunc()
	return r.conn(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Update("read_at", now).Error
}

func (r *notificationRepository) MarkByMembershipPurchase(ctx context.Context, userUID string, purchaseID uint64) error {
	now := r.db.NowFunc()
	return r.conn(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND membership_purchase_id = ? AND read_at IS NULL", userUID, purchaseID).
		Update("read_at", now).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	var cnt int64
	if err := r.conn(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
