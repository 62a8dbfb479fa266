package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"go.uber.org/zap"
)

const defaultLedgerPage = 50

type Wallet struct {
	Balance int64
	History []model.CoinLedgerEntry
}

// Receipt lists the volumes bought in one checkout.
type Receipt struct {
	TransactionID string
	Total         int64
	Items         []model.PurchaseRecord
}

// WalletService is the read side of a user's coins and bookshelf plus the
// back-office grant path.
type WalletService interface {
	Profile(ctx context.Context, uid string) (*model.User, error)
	Wallet(ctx context.Context, uid string, limit int) (*Wallet, error)
	Bookshelf(ctx context.Context, uid string) ([]model.PurchaseRecord, error)
	Receipt(ctx context.Context, uid, transactionID string) (*Receipt, error)
	Grant(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error)
}

type walletService struct {
	users         repository.UserRepository
	ledger        LedgerService
	purchases     repository.PurchaseRepository
	notifications NotificationService
	publisher     events.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

func NewWalletService(users repository.UserRepository, ledger LedgerService, purchases repository.PurchaseRepository, notifications NotificationService, publisher events.Publisher, logger *zap.Logger) WalletService {
	if notifications == nil {
		notifications = nopNotifications{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &walletService{
		users:         users,
		ledger:        ledger,
		purchases:     purchases,
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *walletService) Profile(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	return s.users.Get(ctx, uid)
}

func (s *walletService) Wallet(ctx context.Context, uid string, limit int) (*Wallet, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultLedgerPage
	}
	balance, err := s.ledger.Balance(ctx, uid)
	if err != nil {
		return nil, err
	}
	history, err := s.ledger.History(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	return &Wallet{Balance: balance, History: history}, nil
}

func (s *walletService) Bookshelf(ctx context.Context, uid string) ([]model.PurchaseRecord, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	return s.purchases.ListByUser(ctx, uid)
}

// Receipt returns the caller's records for one checkout transaction. Another
// user's transaction reads as not found.
func (s *walletService) Receipt(ctx context.Context, uid, transactionID string) (*Receipt, error) {
	ve := &ValidationError{}
	if uid == "" {
		ve.Add("uid", "required")
	}
	if transactionID == "" {
		ve.Add("transaction_id", "required")
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}
	items, err := s.purchases.ListByTransaction(ctx, uid, transactionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	r := &Receipt{TransactionID: transactionID, Items: items}
	for _, it := range items {
		r.Total += it.PricePaid
	}
	return r, nil
}

func (s *walletService) Grant(ctx context.Context, uid string, amount int64, reason model.LedgerReason, reference string) (int64, error) {
	switch reason {
	case "":
		reason = model.LedgerReasonAdminGrant
	case model.LedgerReasonAdminGrant, model.LedgerReasonTopUp, model.LedgerReasonRefund:
	default:
		return 0, NewValidationError("reason", "must be one of admin_grant, top_up, refund")
	}
	balance, err := s.ledger.Credit(ctx, uid, amount, reason, reference)
	if err != nil {
		return 0, err
	}
	s.logger.Info("coins granted",
		zap.String("uid", uid),
		zap.Int64("amount", amount),
		zap.String("reason", string(reason)),
		zap.Int64("balance", balance))
	s.notifications.Notify(ctx, uid, NotificationCoinsCredited,
		"Coins added",
		fmt.Sprintf("%d coins were added to your wallet.", amount),
		nil, nil)
	ev := events.Event{
		Type:       events.TypeCoinsCredited,
		UserUID:    uid,
		Reference:  reference,
		Data:       map[string]interface{}{"amount": amount, "reason": reason, "balance": balance},
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
	return balance, nil
}
