package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"gorm.io/gorm"
)

// LedgerService is the only writer of User.Coins. Every change appends a
// CoinLedgerEntry in the same transaction.
type LedgerService interface {
	Balance(ctx context.Context, uid string) (int64, error)
	Credit(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error)
	Debit(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error)
	History(ctx context.Context, uid string, limit int) ([]model.CoinLedgerEntry, error)
}

type ledgerService struct {
	tx    repository.Transactor
	users repository.UserRepository
}

func NewLedgerService(tx repository.Transactor, users repository.UserRepository) LedgerService {
	return &ledgerService{tx: tx, users: users}
}

func (s *ledgerService) Balance(ctx context.Context, uid string) (int64, error) {
	if uid == "" {
		return 0, NewValidationError("uid", "required")
	}
	u, err := s.users.Get(ctx, uid)
	if err != nil {
		return 0, err
	}
	return u.Coins, nil
}

func (s *ledgerService) Credit(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error) {
	if err := validateLedgerInput(uid, amount); err != nil {
		return 0, err
	}
	var balance int64
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.Credit(ctx, uid, amount); err != nil {
			return fmt.Errorf("credit coins: %w", err)
		}
		var err error
		balance, err = s.appendEntry(ctx, uid, amount, reason, reference)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *ledgerService) Debit(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error) {
	if err := validateLedgerInput(uid, amount); err != nil {
		return 0, err
	}
	var balance int64
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.Debit(ctx, uid, amount); err != nil {
			switch {
			case errors.Is(err, repository.ErrInsufficientBalance):
				return ErrInsufficientFunds
			case errors.Is(err, gorm.ErrRecordNotFound):
				return ErrNotFound
			}
			return fmt.Errorf("debit coins: %w", err)
		}
		var err error
		balance, err = s.appendEntry(ctx, uid, -amount, reason, reference)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *ledgerService) History(ctx context.Context, uid string, limit int) ([]model.CoinLedgerEntry, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	return s.users.ListLedger(ctx, uid, limit)
}

func (s *ledgerService) appendEntry(ctx context.Context, uid string, change int64, reason model.LedgerReason, reference string) (int64, error) {
	u, err := s.users.Get(ctx, uid)
	if err != nil {
		return 0, err
	}
	entry := &model.CoinLedgerEntry{
		UserUID:      uid,
		Change:       change,
		BalanceAfter: u.Coins,
		Reason:       reason,
		Reference:    reference,
	}
	if err := s.users.AppendLedger(ctx, entry); err != nil {
		return 0, fmt.Errorf("append ledger: %w", err)
	}
	return u.Coins, nil
}

func validateLedgerInput(uid string, amount int64) error {
	ve := &ValidationError{}
	if uid == "" {
		ve.Add("uid", "required")
	}
	if amount <= 0 {
		ve.Add("amount", "must be positive")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}
