package service

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
	"go.uber.org/zap"
)

const (
	NotificationCheckoutCompleted   = "checkout_completed"
	NotificationMembershipCompleted = "membership_completed"
	NotificationCoinsCredited       = "coins_credited"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, transactionID *string, membershipPurchaseID *uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByMembershipPurchase(ctx context.Context, userUID string, purchaseID uint64) error
}

// nopNotifications stands in when no notification store is wired.
type nopNotifications struct{}

func (nopNotifications) Notify(context.Context, string, string, string, string, *string, *uint64) {}

func (nopNotifications) List(context.Context, string, bool, int) ([]model.Notification, int64, error) {
	return nil, 0, nil
}

func (nopNotifications) MarkAllRead(context.Context, string) error { return nil }

func (nopNotifications) MarkByMembershipPurchase(context.Context, string, uint64) error { return nil }

type notificationService struct {
	repo   repository.NotificationRepository
	logger *zap.Logger
}

func NewNotificationService(repo repository.NotificationRepository, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, logger: logger}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, transactionID *string, membershipPurchaseID *uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID:              userUID,
		Type:                 typ,
		Title:                title,
		Body:                 body,
		TransactionID:        transactionID,
		MembershipPurchaseID: membershipPurchaseID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("notification not stored", append(reqctx.Fields(ctx), zap.String("type", typ), zap.Error(err))...)
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByMembershipPurchase(ctx context.Context, userUID string, purchaseID uint64) error {
	if userUID == "" || purchaseID == 0 {
		return nil
	}
	return s.repo.MarkByMembershipPurchase(ctx, userUID, purchaseID)
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}
