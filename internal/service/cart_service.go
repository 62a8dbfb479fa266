package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"gorm.io/gorm"
)

type CartService interface {
	Add(ctx context.Context, uid string, ebookID uint64) error
	AddSeries(ctx context.Context, uid string, seriesID uint64) (int, error)
	Remove(ctx context.Context, uid string, cartItemID uint64) error
	Items(ctx context.Context, uid string) ([]model.CartItem, error)
	Total(ctx context.Context, uid string) (int64, error)
	Clear(ctx context.Context, uid string) error
}

type cartService struct {
	tx        repository.Transactor
	cart      repository.CartRepository
	ebooks    repository.EbookRepository
	purchases repository.PurchaseRepository
}

func NewCartService(tx repository.Transactor, cart repository.CartRepository, ebooks repository.EbookRepository, purchases repository.PurchaseRepository) CartService {
	return &cartService{tx: tx, cart: cart, ebooks: ebooks, purchases: purchases}
}

func (s *cartService) Add(ctx context.Context, uid string, ebookID uint64) error {
	if uid == "" {
		return NewValidationError("uid", "required")
	}
	if ebookID == 0 {
		return NewValidationError("product_id", "required")
	}
	if _, err := s.ebooks.FindByID(ctx, ebookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	owned, err := s.purchases.Owns(ctx, uid, ebookID)
	if err != nil {
		return err
	}
	if owned {
		return ErrAlreadyOwned
	}
	inCart, err := s.cart.Exists(ctx, uid, ebookID)
	if err != nil {
		return err
	}
	if inCart {
		return ErrAlreadyInCart
	}
	if err := s.cart.Create(ctx, &model.CartItem{UserUID: uid, EbookID: ebookID}); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyInCart
		}
		return err
	}
	return nil
}

// AddSeries adds every volume of a series, skipping owned and carted ones.
func (s *cartService) AddSeries(ctx context.Context, uid string, seriesID uint64) (int, error) {
	if uid == "" {
		return 0, NewValidationError("uid", "required")
	}
	if seriesID == 0 {
		return 0, NewValidationError("series_id", "required")
	}
	if _, err := s.ebooks.FindSeries(ctx, seriesID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	added := 0
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		ebooks, err := s.ebooks.ListBySeries(ctx, seriesID)
		if err != nil {
			return err
		}
		ids := make([]uint64, len(ebooks))
		for i, e := range ebooks {
			ids[i] = e.ID
		}
		owned, err := s.purchases.OwnedEbookIDs(ctx, uid, ids)
		if err != nil {
			return err
		}
		inCart, err := s.cart.EbookIDs(ctx, uid)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := owned[id]; ok {
				continue
			}
			if _, ok := inCart[id]; ok {
				continue
			}
			if err := s.cart.Create(ctx, &model.CartItem{UserUID: uid, EbookID: id}); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					continue
				}
				return fmt.Errorf("add ebook %d: %w", id, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if added == 0 {
		return 0, ErrNothingToAdd
	}
	return added, nil
}

// Remove reports ErrNotFound both for a missing item and for an item that
// belongs to someone else.
func (s *cartService) Remove(ctx context.Context, uid string, cartItemID uint64) error {
	if uid == "" {
		return NewValidationError("uid", "required")
	}
	n, err := s.cart.Delete(ctx, uid, cartItemID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cartService) Items(ctx context.Context, uid string) ([]model.CartItem, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	return s.cart.ListWithEbooks(ctx, uid)
}

// Total is recomputed from current ebook prices on every call.
func (s *cartService) Total(ctx context.Context, uid string) (int64, error) {
	items, err := s.Items(ctx, uid)
	if err != nil {
		return 0, err
	}
	return cartTotal(items), nil
}

func (s *cartService) Clear(ctx context.Context, uid string) error {
	if uid == "" {
		return NewValidationError("uid", "required")
	}
	_, err := s.cart.DeleteAll(ctx, uid)
	return err
}

func cartTotal(items []model.CartItem) int64 {
	var total int64
	for _, it := range items {
		if it.Ebook != nil {
			total += it.Ebook.Price
		}
	}
	return total
}
