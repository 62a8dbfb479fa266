package repository

import (
	"context"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

type MembershipRepository interface {
	CreatePackage(ctx context.Context, p *model.MembershipPackage) error
	ListActivePackages(ctx context.Context) ([]model.MembershipPackage, error)
	FindPackage(ctx context.Context, id uint64) (*model.MembershipPackage, error)

	Create(ctx context.Context, p *model.MembershipPurchase) error
	FindByID(ctx context.Context, id uint64) (*model.MembershipPurchase, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.MembershipPurchase, error)
	FindByGatewayOrderID(ctx context.Context, provider, orderID string) (*model.MembershipPurchase, error)
	SetGatewayOrder(ctx context.Context, id uint64, orderID string) error
	CompleteIfPending(ctx context.Context, id uint64, transactionID string, startsAt, expiresAt, completedAt time.Time) (int64, error)
	CancelIfPending(ctx context.Context, id uint64, uid string) (int64, error)
	ListByUser(ctx context.Context, uid string) ([]model.MembershipPurchase, error)
}

type membershipRepository struct {
	baseRepository
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{baseRepository{db: db}}
}

func (r *membershipRepository) CreatePackage(ctx context.Context, p *model.MembershipPackage) error {
	return r.conn(ctx).Create(p).Error
}

func (r *membershipRepository) ListActivePackages(ctx context.Context) ([]model.MembershipPackage, error) {
	var list []model.MembershipPackage
	if err := r.conn(ctx).
		Where("is_active = ?", true).
		Order("duration_days ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *membershipRepository) FindPackage(ctx context.Context, id uint64) (*model.MembershipPackage, error) {
	var p model.MembershipPackage
	if err := r.conn(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *membershipRepository) Create(ctx context.Context, p *model.MembershipPurchase) error {
	return r.conn(ctx).Create(p).Error
}

func (r *membershipRepository) FindByID(ctx context.Context, id uint64) (*model.MembershipPurchase, error) {
	var p model.MembershipPurchase
	if err := r.conn(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *membershipRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*model.MembershipPurchase, error) {
	var p model.MembershipPurchase
	if err := forUpdate(r.conn(ctx)).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *membershipRepository) FindByGatewayOrderID(ctx context.Context, provider, orderID string) (*model.MembershipPurchase, error) {
	var p model.MembershipPurchase
	if err := r.conn(ctx).
		Where("payment_method = ? AND gateway_order_id = ?", provider, orderID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *membershipRepository) SetGatewayOrder(ctx context.Context, id uint64, orderID string) error {
	return r.conn(ctx).
		Model(&model.MembershipPurchase{}).
		Where("id = ?", id).
		Update("gateway_order_id", orderID).Error
}

// CompleteIfPending flips pending to completed; zero rows means another
// caller already did it.
func (r *membershipRepository) CompleteIfPending(ctx context.Context, id uint64, transactionID string, startsAt, expiresAt, completedAt time.Time) (int64, error) {
	res := r.conn(ctx).
		Model(&model.MembershipPurchase{}).
		Where("id = ? AND status = ?", id, model.MembershipPurchasePending).
		Updates(map[string]interface{}{
			"status":         model.MembershipPurchaseCompleted,
			"transaction_id": transactionID,
			"starts_at":      startsAt,
			"expires_at":     expiresAt,
			"completed_at":   completedAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *membershipRepository) CancelIfPending(ctx context.Context, id uint64, uid string) (int64, error) {
	res := r.conn(ctx).
		Model(&model.MembershipPurchase{}).
		Where("id = ? AND user_uid = ? AND status = ?", id, uid, model.MembershipPurchasePending).
		Update("status", model.MembershipPurchaseCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *membershipRepository) ListByUser(ctx context.Context, uid string) ([]model.MembershipPurchase, error) {
	var list []model.MembershipPurchase
	if err := r.conn(ctx).
		Where("user_uid = ?", uid).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
