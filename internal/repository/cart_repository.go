package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

var ErrDuplicate = errors.New("duplicate")

type CartRepository interface {
	Create(ctx context.Context, item *model.CartItem) error
	Exists(ctx context.Context, uid string, ebookID uint64) (bool, error)
	EbookIDs(ctx context.Context, uid string) (map[uint64]struct{}, error)
	ListWithEbooks(ctx context.Context, uid string) ([]model.CartItem, error)
	Delete(ctx context.Context, uid string, id uint64) (int64, error)
	DeleteByIDs(ctx context.Context, uid string, ids []uint64) (int64, error)
	DeleteAll(ctx context.Context, uid string) (int64, error)
}

type cartRepository struct {
	baseRepository
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{baseRepository{db: db}}
}

func (r *cartRepository) Create(ctx context.Context, item *model.CartItem) error {
	err := r.conn(ctx).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *cartRepository) Exists(ctx context.Context, uid string, ebookID uint64) (bool, error) {
	var cnt int64
	if err := r.conn(ctx).
		Model(&model.CartItem{}).
		Where("user_uid = ? AND ebook_id = ?", uid, ebookID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *cartRepository) EbookIDs(ctx context.Context, uid string) (map[uint64]struct{}, error) {
	var ids []uint64
	if err := r.conn(ctx).
		Model(&model.CartItem{}).
		Where("user_uid = ?", uid).
		Pluck("ebook_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *cartRepository) ListWithEbooks(ctx context.Context, uid string) ([]model.CartItem, error) {
	var list []model.CartItem
	if err := r.conn(ctx).
		Preload("Ebook").
		Where("user_uid = ?", uid).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Delete is scoped by owner; a foreign item id affects no rows.
func (r *cartRepository) Delete(ctx context.Context, uid string, id uint64) (int64, error) {
	res := r.conn(ctx).Where("id = ? AND user_uid = ?", id, uid).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *cartRepository) DeleteByIDs(ctx context.Context, uid string, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.conn(ctx).Where("user_uid = ? AND id IN ?", uid, ids).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *cartRepository) DeleteAll(ctx context.Context, uid string) (int64, error) {
	res := r.conn(ctx).Where("user_uid = ?", uid).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}
