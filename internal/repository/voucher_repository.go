package repository

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

type VoucherRepository interface {
	Create(ctx context.Context, v *model.Voucher) error
	FindByCode(ctx context.Context, code string) (*model.Voucher, error)
	CountUsage(ctx context.Context, voucherID uint64, uid string, scope model.VoucherScope) (int64, error)
	CountAllUsage(ctx context.Context, voucherID uint64) (int64, error)
	CountPendingClaims(ctx context.Context, voucherID uint64, uid string) (int64, error)
	CreateUsage(ctx context.Context, u *model.VoucherUsage) error
}

type voucherRepository struct {
	baseRepository
}

func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{baseRepository{db: db}}
}

func (r *voucherRepository) Create(ctx context.Context, v *model.Voucher) error {
	return r.conn(ctx).Create(v).Error
}

func (r *voucherRepository) FindByCode(ctx context.Context, code string) (*model.Voucher, error) {
	var v model.Voucher
	if err := r.conn(ctx).Where("code = ?", code).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *voucherRepository) CountUsage(ctx context.Context, voucherID uint64, uid string, scope model.VoucherScope) (int64, error) {
	var cnt int64
	if err := r.conn(ctx).
		Model(&model.VoucherUsage{}).
		Where("voucher_id = ? AND user_uid = ? AND scope = ?", voucherID, uid, scope).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *voucherRepository) CountAllUsage(ctx context.Context, voucherID uint64) (int64, error) {
	var cnt int64
	if err := r.conn(ctx).
		Model(&model.VoucherUsage{}).
		Where("voucher_id = ?", voucherID).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

// CountPendingClaims counts pending membership purchases holding the
// voucher. An empty uid counts every user.
func (r *voucherRepository) CountPendingClaims(ctx context.Context, voucherID uint64, uid string) (int64, error) {
	q := r.conn(ctx).
		Model(&model.MembershipPurchase{}).
		Where("voucher_id = ? AND status = ?", voucherID, model.MembershipPurchasePending)
	if uid != "" {
		q = q.Where("user_uid = ?", uid)
	}
	var cnt int64
	if err := q.Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *voucherRepository) CreateUsage(ctx context.Context, u *model.VoucherUsage) error {
	return r.conn(ctx).Create(u).Error
}
