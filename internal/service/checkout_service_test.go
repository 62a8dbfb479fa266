package service

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/stretchr/testify/require"
)

type checkoutState struct {
	coins     int64
	cart      []uint64
	purchases []uint64
	ledger    int64
}

func (e *testEnv) snapshot(t *testing.T, uid string) checkoutState {
	t.Helper()
	var st checkoutState
	st.coins = e.balance(t, uid)
	require.NoError(t, e.db.Model(&model.CartItem{}).Where("user_uid = ?", uid).Order("id").Pluck("id", &st.cart).Error)
	require.NoError(t, e.db.Model(&model.PurchaseRecord{}).Where("user_uid = ?", uid).Order("id").Pluck("ebook_id", &st.purchases).Error)
	require.NoError(t, e.db.Model(&model.CoinLedgerEntry{}).Where("user_uid = ?", uid).Count(&st.ledger).Error)
	return st
}

func TestCheckout_Succeeds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 100)
	eb := e.ebook(t, 0, 60)
	require.NoError(t, e.cart.Add(ctx, "u1", eb.ID))

	res, err := e.checkout.Checkout(ctx, "u1", "")
	require.NoError(t, err)
	require.Equal(t, int64(60), res.Charged)
	require.Equal(t, int64(40), res.Balance)
	require.Len(t, res.Purchased, 1)
	require.Regexp(t, `^TRX-`, res.TransactionID)

	require.Equal(t, int64(40), e.balance(t, "u1"))
	require.Equal(t, int64(1), e.countRows(t, &model.PurchaseRecord{}))
	require.Equal(t, int64(0), e.countRows(t, &model.CartItem{}))
	require.Equal(t, []string{events.TypeCheckoutCompleted}, e.pub.Types())

	list, unread, err := e.notifications.List(ctx, "u1", true, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)
	require.Equal(t, NotificationCheckoutCompleted, list[0].Type)
}

func TestCheckout_InsufficientFundsChangesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 100)
	eb := e.ebook(t, 0, 150)
	require.NoError(t, e.cart.Add(ctx, "u1", eb.ID))
	before := e.snapshot(t, "u1")

	_, err := e.checkout.Checkout(ctx, "u1", "")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, before, e.snapshot(t, "u1"))
	require.Empty(t, e.pub.Events)
}

func TestCheckout_VoucherExactBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 80)
	v := e.voucher(t, model.Voucher{Code: "SAVE20", DiscountValue: d("20"), AppliesTo: model.VoucherScopeEbook})
	a := e.ebook(t, 0, 70)
	b := e.ebook(t, a.SeriesID, 30)
	require.NoError(t, e.cart.Add(ctx, "u1", a.ID))
	require.NoError(t, e.cart.Add(ctx, "u1", b.ID))

	q, err := e.vouchers.Evaluate(ctx, "save20", "u1", model.VoucherScopeEbook, d("100"))
	require.NoError(t, err)
	require.True(t, d("20").Equal(q.Discount))
	require.True(t, d("80").Equal(q.Final))

	res, err := e.checkout.Checkout(ctx, "u1", "save20")
	require.NoError(t, err)
	require.Equal(t, int64(100), res.Gross)
	require.Equal(t, int64(20), res.Discount)
	require.Equal(t, int64(80), res.Charged)
	require.Equal(t, int64(0), e.balance(t, "u1"))

	used, err := e.voucherRepo.CountUsage(ctx, v.ID, "u1", model.VoucherScopeEbook)
	require.NoError(t, err)
	require.Equal(t, int64(1), used)
}

func TestCheckout_VoucherFailureAborts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 100)
	e.voucher(t, model.Voucher{Code: "MEMBERS", DiscountValue: d("50"), AppliesTo: model.VoucherScopeMembership})
	eb := e.ebook(t, 0, 60)
	require.NoError(t, e.cart.Add(ctx, "u1", eb.ID))
	before := e.snapshot(t, "u1")

	_, err := e.checkout.Checkout(ctx, "u1", "MEMBERS")
	require.ErrorIs(t, err, ErrVoucherScopeMismatch)
	_, err = e.checkout.Checkout(ctx, "u1", "MISSING")
	require.ErrorIs(t, err, ErrVoucherNotFound)
	require.Equal(t, before, e.snapshot(t, "u1"))
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "u1", 10)
	_, err := e.checkout.Checkout(context.Background(), "u1", "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_SkipsItemsOwnedMeanwhile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 100)
	a := e.ebook(t, 0, 30)
	b := e.ebook(t, a.SeriesID, 40)
	require.NoError(t, e.cart.Add(ctx, "u1", a.ID))
	require.NoError(t, e.cart.Add(ctx, "u1", b.ID))
	// bought through another path after it was carted
	require.NoError(t, e.purchases.CreateBatch(ctx, []model.PurchaseRecord{
		{UserUID: "u1", EbookID: a.ID, TransactionID: "TRX-OTHER", PricePaid: 30, PurchasedAt: day0},
	}))

	res, err := e.checkout.Checkout(ctx, "u1", "")
	require.NoError(t, err)
	require.Equal(t, int64(40), res.Charged)
	require.Equal(t, []uint64{a.ID}, res.Skipped)
	require.Equal(t, int64(60), e.balance(t, "u1"))
	require.Equal(t, int64(0), e.countRows(t, &model.CartItem{}))
}

func TestCheckout_FailureRollsBackEverything(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 100)
	eb := e.ebook(t, 0, 60)
	require.NoError(t, e.cart.Add(ctx, "u1", eb.ID))
	before := e.snapshot(t, "u1")

	// Breaking the usage table makes the last write of the transaction fail.
	v := e.voucher(t, model.Voucher{Code: "SAVE10", DiscountValue: d("10")})
	require.NoError(t, e.db.Model(v).Update("per_user_limit", 0).Error)
	require.NoError(t, e.db.Migrator().DropTable(&model.VoucherUsage{}))

	_, err := e.checkout.Checkout(ctx, "u1", v.Code)
	require.ErrorIs(t, err, ErrCheckoutFailed)
	require.Equal(t, before, e.snapshot(t, "u1"))
}

func TestCheckout_ConcurrentCallsChargeOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", 60)
	eb := e.ebook(t, 0, 60)
	require.NoError(t, e.cart.Add(ctx, "u1", eb.ID))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.checkout.Checkout(ctx, "u1", "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrEmptyCart)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, int64(0), e.balance(t, "u1"))

	var owned []uint64
	require.NoError(t, e.db.Model(&model.PurchaseRecord{}).Pluck("ebook_id", &owned).Error)
	sort.Slice(owned, func(i, j int) bool { return owned[i] < owned[j] })
	require.Equal(t, []uint64{eb.ID}, owned)
}
