package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IDGenerator is satisfied by idgen.Generator.
type IDGenerator interface {
	InvoiceNumber() string
	TransactionID() string
}

type CheckoutResult struct {
	TransactionID string
	Gross         int64
	Discount      int64
	Charged       int64
	Balance       int64
	VoucherCode   string
	Purchased     []model.PurchaseRecord
	// Skipped holds ebooks that were in the cart but already owned.
	Skipped []uint64
}

type CheckoutService interface {
	Checkout(ctx context.Context, uid, voucherCode string) (*CheckoutResult, error)
}

type CheckoutDeps struct {
	Tx            repository.Transactor
	Users         repository.UserRepository
	Cart          repository.CartRepository
	Purchases     repository.PurchaseRepository
	Ledger        LedgerService
	Vouchers      VoucherService
	Notifications NotificationService
	Publisher     events.Publisher
	IDs           IDGenerator
	Logger        *zap.Logger
}

type checkoutService struct {
	CheckoutDeps
	now func() time.Time
}

func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &checkoutService{CheckoutDeps: deps, now: time.Now}
}

// Checkout converts the whole cart into purchase records and debits the
// coins in one transaction. It must not be retried automatically: every
// call issues a new transaction id.
func (s *checkoutService) Checkout(ctx context.Context, uid, voucherCode string) (*CheckoutResult, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	code := NormalizeVoucherCode(voucherCode)
	var (
		res      *CheckoutResult
		snapshot []model.CartItem
	)
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		user, err := s.Users.GetForUpdate(ctx, uid)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		snapshot, err = s.Cart.ListWithEbooks(ctx, uid)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if len(snapshot) == 0 {
			return ErrEmptyCart
		}

		ebookIDs := make([]uint64, 0, len(snapshot))
		cartIDs := make([]uint64, 0, len(snapshot))
		for _, it := range snapshot {
			ebookIDs = append(ebookIDs, it.EbookID)
			cartIDs = append(cartIDs, it.ID)
		}
		owned, err := s.Purchases.OwnedEbookIDs(ctx, uid, ebookIDs)
		if err != nil {
			return fmt.Errorf("load owned ebooks: %w", err)
		}

		r := &CheckoutResult{Balance: user.Coins}
		var toBuy []model.CartItem
		for _, it := range snapshot {
			if _, ok := owned[it.EbookID]; ok || it.Ebook == nil {
				r.Skipped = append(r.Skipped, it.EbookID)
				continue
			}
			toBuy = append(toBuy, it)
			r.Gross += it.Ebook.Price
		}
		if len(toBuy) == 0 {
			return ErrEmptyCart
		}

		final := r.Gross
		var quote *VoucherQuote
		if code != "" {
			quote, err = s.Vouchers.Evaluate(ctx, code, uid, model.VoucherScopeEbook, decimal.NewFromInt(r.Gross))
			if err != nil {
				return err
			}
			r.VoucherCode = quote.Code
			r.Discount = quote.Discount.IntPart()
			final = quote.Final.IntPart()
		}
		if user.Coins < final {
			return ErrInsufficientFunds
		}

		r.TransactionID = s.IDs.TransactionID()
		r.Charged = final
		now := s.now().UTC()
		records := make([]model.PurchaseRecord, 0, len(toBuy))
		for _, it := range toBuy {
			records = append(records, model.PurchaseRecord{
				UserUID:       uid,
				EbookID:       it.EbookID,
				TransactionID: r.TransactionID,
				PricePaid:     it.Ebook.Price,
				PurchasedAt:   now,
			})
		}
		if err := s.Purchases.CreateBatch(ctx, records); err != nil {
			return fmt.Errorf("create purchase records: %w", err)
		}
		r.Purchased = records

		if final > 0 {
			if r.Balance, err = s.Ledger.Debit(ctx, uid, final, model.LedgerReasonCheckout, r.TransactionID); err != nil {
				return err
			}
		}
		if quote != nil {
			if err := s.Vouchers.RecordUsage(ctx, quote.VoucherID, uid, model.VoucherScopeEbook, r.TransactionID, quote.Discount); err != nil {
				return fmt.Errorf("record voucher usage: %w", err)
			}
		}
		// Only the snapshot is removed; items added meanwhile stay in the cart.
		if _, err := s.Cart.DeleteByIDs(ctx, uid, cartIDs); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		res = r
		return nil
	})
	if err != nil {
		if isBusinessError(err) {
			return nil, err
		}
		s.Logger.Error("checkout rolled back",
			append(reqctx.Fields(ctx),
				zap.String("uid", uid),
				zap.String("voucher_code", code),
				zap.Any("cart_snapshot", snapshotSummary(snapshot)),
				zap.Error(err))...)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}

	s.Logger.Info("checkout completed",
		append(reqctx.Fields(ctx),
			zap.String("transaction_id", res.TransactionID),
			zap.Int64("charged", res.Charged),
			zap.Int("items", len(res.Purchased)))...)
	s.afterCommit(ctx, uid, res)
	return res, nil
}

func (s *checkoutService) afterCommit(ctx context.Context, uid string, res *CheckoutResult) {
	if s.Notifications != nil {
		s.Notifications.Notify(ctx, uid, NotificationCheckoutCompleted,
			"Purchase complete",
			fmt.Sprintf("%d ebook(s) added to your bookshelf for %d coins.", len(res.Purchased), res.Charged),
			stringPtr(res.TransactionID), nil)
	}
	ev := events.Event{
		Type:      events.TypeCheckoutCompleted,
		UserUID:   uid,
		Reference: res.TransactionID,
		Data: map[string]interface{}{
			"charged":  res.Charged,
			"discount": res.Discount,
			"items":    len(res.Purchased),
		},
		OccurredAt: s.now().UTC(),
	}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.Logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
	if res.VoucherCode == "" {
		return
	}
	redeemed := events.Event{
		Type:      events.TypeVoucherRedeemed,
		UserUID:   uid,
		Reference: res.TransactionID,
		Data: map[string]interface{}{
			"code":     res.VoucherCode,
			"scope":    model.VoucherScopeEbook,
			"discount": res.Discount,
		},
		OccurredAt: ev.OccurredAt,
	}
	if err := s.Publisher.Publish(ctx, redeemed); err != nil {
		s.Logger.Warn("event publish failed", zap.String("type", redeemed.Type), zap.Error(err))
	}
}

type cartLine struct {
	CartItemID uint64 `json:"cart_item_id"`
	EbookID    uint64 `json:"ebook_id"`
	Price      int64  `json:"price"`
}

func snapshotSummary(items []model.CartItem) []cartLine {
	out := make([]cartLine, 0, len(items))
	for _, it := range items {
		line := cartLine{CartItemID: it.ID, EbookID: it.EbookID}
		if it.Ebook != nil {
			line.Price = it.Ebook.Price
		}
		out = append(out, line)
	}
	return out
}
