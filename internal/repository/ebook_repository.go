package repository

import (
	"context"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"gorm.io/gorm"
)

type EbookRepository interface {
	Create(ctx context.Context, e *model.Ebook) error
	CreateSeries(ctx context.Context, s *model.Series) error
	FindByID(ctx context.Context, id uint64) (*model.Ebook, error)
	FindSeries(ctx context.Context, id uint64) (*model.Series, error)
	ListBySeries(ctx context.Context, seriesID uint64) ([]model.Ebook, error)
}

type ebookRepository struct {
	baseRepository
}

func NewEbookRepository(db *gorm.DB) EbookRepository {
	return &ebookRepository{baseRepository{db: db}}
}

func (r *ebookRepository) Create(ctx context.Context, e *model.Ebook) error {
	return r.conn(ctx).Create(e).Error
}

func (r *ebookRepository) CreateSeries(ctx context.Context, s *model.Series) error {
	return r.conn(ctx).Create(s).Error
}

func (r *ebookRepository) FindByID(ctx context.Context, id uint64) (*model.Ebook, error) {
	var e model.Ebook
	if err := r.conn(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ebookRepository) FindSeries(ctx context.Context, id uint64) (*model.Series, error) {
	var s model.Series
	if err := r.conn(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ebookRepository) ListBySeries(ctx context.Context, seriesID uint64) ([]model.Ebook, error) {
	var list []model.Ebook
	if err := r.conn(ctx).
		Where("series_id = ?", seriesID).
		Order("volume ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
