package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type UserRepository interface {
	Get(ctx context.Context, uid string) (*model.User, error)
	GetForUpdate(ctx context.Context, uid string) (*model.User, error)
	Credit(ctx context.Context, uid string, coins int64) error
	Debit(ctx context.Context, uid string, coins int64) error
	SetMembership(ctx context.Context, uid string, tier model.MembershipTier, expiresAt time.Time) error
	AppendLedger(ctx context.Context, e *model.CoinLedgerEntry) error
	ListLedger(ctx context.Context, uid string, limit int) ([]model.CoinLedgerEntry, error)
}

type userRepository struct {
	baseRepository
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{baseRepository{db: db}}
}

func (r *userRepository) Get(ctx context.Context, uid string) (*model.User, error) {
	var u model.User
	if err := r.conn(ctx).
		Where("uid = ?", uid).
		FirstOrCreate(&u, &model.User{UID: uid}).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, uid string) (*model.User, error) {
	if _, err := r.Get(ctx, uid); err != nil {
		return nil, err
	}
	var u model.User
	if err := forUpdate(r.conn(ctx)).Where("uid = ?", uid).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Credit(ctx context.Context, uid string, coins int64) error {
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"coins": gorm.Expr("coins + ?", coins)}),
	}).Create(&model.User{UID: uid, Coins: coins}).Error
}

// Debit subtracts coins only while the balance covers them, in one statement.
func (r *userRepository) Debit(ctx context.Context, uid string, coins int64) error {
	res := r.conn(ctx).
		Model(&model.User{}).
		Where("uid = ? AND coins >= ?", uid, coins).
		Update("coins", gorm.Expr("coins - ?", coins))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var cnt int64
	if err := r.conn(ctx).Model(&model.User{}).Where("uid = ?", uid).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrInsufficientBalance
}

func (r *userRepository) SetMembership(ctx context.Context, uid string, tier model.MembershipTier, expiresAt time.Time) error {
	return r.conn(ctx).
		Model(&model.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"membership_tier":       tier,
			"membership_expires_at": expiresAt,
		}).Error
}

func (r *userRepository) AppendLedger(ctx context.Context, e *model.CoinLedgerEntry) error {
	return r.conn(ctx).Create(e).Error
}

func (r *userRepository) ListLedger(ctx context.Context, uid string, limit int) ([]model.CoinLedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []model.CoinLedgerEntry
	if err := r.conn(ctx).
		Where("user_uid = ?", uid).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
