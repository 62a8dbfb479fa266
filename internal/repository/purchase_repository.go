package repository

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

type PurchaseRepository interface {
	CreateBatch(ctx context.Context, records []model.PurchaseRecord) error
	Owns(ctx context.Context, uid string, ebookID uint64) (bool, error)
	OwnedEbookIDs(ctx context.Context, uid string, ebookIDs []uint64) (map[uint64]struct{}, error)
	ListByUser(ctx context.Context, uid string) ([]model.PurchaseRecord, error)
	ListByTransaction(ctx context.Context, uid, transactionID string) ([]model.PurchaseRecord, error)
}

type purchaseRepository struct {
	baseRepository
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{baseRepository{db: db}}
}

func (r *purchaseRepository) CreateBatch(ctx context.Context, records []model.PurchaseRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.conn(ctx).Create(&records).Error
}

func (r *purchaseRepository) Owns(ctx context.Context, uid string, ebookID uint64) (bool, error) {
	var cnt int64
	if err := r.conn(ctx).
		Model(&model.PurchaseRecord{}).
		Where("user_uid = ? AND ebook_id = ?", uid, ebookID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *purchaseRepository) OwnedEbookIDs(ctx context.Context, uid string, ebookIDs []uint64) (map[uint64]struct{}, error) {
	set := make(map[uint64]struct{})
	if len(ebookIDs) == 0 {
		return set, nil
	}
	var owned []uint64
	if err := r.conn(ctx).
		Model(&model.PurchaseRecord{}).
		Where("user_uid = ? AND ebook_id IN ?", uid, ebookIDs).
		Pluck("ebook_id", &owned).Error; err != nil {
		return nil, err
	}
	for _, id := range owned {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *purchaseRepository) ListByUser(ctx context.Context, uid string) ([]model.PurchaseRecord, error) {
	var list []model.PurchaseRecord
	if err := r.conn(ctx).
		Preload("Ebook").
		Where("user_uid = ?", uid).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *purchaseRepository) ListByTransaction(ctx context.Context, uid, transactionID string) ([]model.PurchaseRecord, error) {
	var list []model.PurchaseRecord
	if err := r.conn(ctx).
		Preload("Ebook").
		Where("user_uid = ? AND transaction_id = ?", uid, transactionID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
