package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/payment"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var day0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) next() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.n
}

func (g *seqIDs) InvoiceNumber() string { return fmt.Sprintf("INV-%d", g.next()) }
func (g *seqIDs) TransactionID() string { return fmt.Sprintf("TRX-%012d", g.next()) }

// fakeGateway records calls and returns canned answers.
type fakeGateway struct {
	name      string
	createErr error
	status    payment.PaymentState
	statusErr error
	event     *payment.WebhookEvent
	parseErr  error

	mu     sync.Mutex
	orders int
	checks int
}

func (g *fakeGateway) Name() string       { return g.name }
func (g *fakeGateway) IsConfigured() bool { return true }
func (g *fakeGateway) Sandbox() bool      { return false }

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orders++
	return &payment.Order{OrderID: "ORD-" + req.InvoiceNumber, PaymentURL: "https://gw.test/pay/" + req.InvoiceNumber}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, orderID string) (*payment.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	st := g.status
	if st == "" {
		st = payment.StatePending
	}
	return &payment.PaymentStatus{OrderID: orderID, State: st, TransactionID: "CAP-" + orderID}, nil
}

func (g *fakeGateway) ParseWebhook(context.Context, []byte, http.Header) (*payment.WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	ev := *g.event
	return &ev, nil
}

type testEnv struct {
	db    *gorm.DB
	clock *testClock
	ids   *seqIDs
	pub   *events.Recorder
	gw    *fakeGateway

	users       repository.UserRepository
	ebooks      repository.EbookRepository
	cartRepo    repository.CartRepository
	purchases   repository.PurchaseRepository
	voucherRepo repository.VoucherRepository
	memberships repository.MembershipRepository
	webhooks    repository.WebhookEventRepository

	ledger        LedgerService
	vouchers      VoucherService
	cart          CartService
	checkout      CheckoutService
	notifications NotificationService
	membership    MembershipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newNamedTestEnv(t, t.Name())
}

// newNamedTestEnv opens a private in-memory database called name.
func newNamedTestEnv(t *testing.T, name string) *testEnv {
	t.Helper()
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))

	e := &testEnv{
		db:          db,
		clock:       &testClock{now: day0},
		ids:         &seqIDs{},
		pub:         &events.Recorder{},
		gw:          &fakeGateway{name: payment.ProviderCrypto},
		users:       repository.NewUserRepository(db),
		ebooks:      repository.NewEbookRepository(db),
		cartRepo:    repository.NewCartRepository(db),
		purchases:   repository.NewPurchaseRepository(db),
		voucherRepo: repository.NewVoucherRepository(db),
		memberships: repository.NewMembershipRepository(db),
		webhooks:    repository.NewWebhookEventRepository(db),
	}
	tx := repository.NewTransactor(db)
	logger := zap.NewNop()

	e.ledger = NewLedgerService(tx, e.users)
	e.vouchers = NewVoucherService(e.voucherRepo)
	e.vouchers.(*voucherService).now = e.clock.Now
	e.cart = NewCartService(tx, e.cartRepo, e.ebooks, e.purchases)
	e.notifications = NewNotificationService(repository.NewNotificationRepository(db), logger)
	e.checkout = NewCheckoutService(CheckoutDeps{
		Tx:            tx,
		Users:         e.users,
		Cart:          e.cartRepo,
		Purchases:     e.purchases,
		Ledger:        e.ledger,
		Vouchers:      e.vouchers,
		Notifications: e.notifications,
		Publisher:     e.pub,
		IDs:           e.ids,
		Logger:        logger,
	})
	e.checkout.(*checkoutService).now = e.clock.Now
	e.membership = NewMembershipService(MembershipDeps{
		Tx:            tx,
		Users:         e.users,
		Memberships:   e.memberships,
		Webhooks:      e.webhooks,
		Vouchers:      e.vouchers,
		Notifications: e.notifications,
		Gateways:      payment.NewRegistry(e.gw, payment.NewDummy(payment.ProviderMidtrans)),
		Publisher:     e.pub,
		IDs:           e.ids,
		Logger:        logger,
	}, MembershipOptions{
		PublicBaseURL:  "https://api.test",
		FrontendURL:    "https://app.test",
		MaxPrepaidDays: 730,
	})
	e.membership.(*membershipService).now = e.clock.Now
	return e
}

func (e *testEnv) ebook(t *testing.T, seriesID uint64, price int64) *model.Ebook {
	t.Helper()
	if seriesID == 0 {
		s := &model.Series{Title: "Series"}
		require.NoError(t, e.ebooks.CreateSeries(context.Background(), s))
		seriesID = s.ID
	}
	eb := &model.Ebook{SeriesID: seriesID, Title: fmt.Sprintf("Vol %d", price), Price: price}
	require.NoError(t, e.ebooks.Create(context.Background(), eb))
	return eb
}

func (e *testEnv) fund(t *testing.T, uid string, coins int64) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), uid, coins, model.LedgerReasonAdminGrant, "test")
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, uid string) int64 {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), uid)
	require.NoError(t, err)
	return b
}

func (e *testEnv) voucher(t *testing.T, v model.Voucher) *model.Voucher {
	t.Helper()
	if v.DiscountType == "" {
		v.DiscountType = model.DiscountTypePercent
	}
	if v.AppliesTo == "" {
		v.AppliesTo = model.VoucherScopeBoth
	}
	v.IsActive = true
	require.NoError(t, e.voucherRepo.Create(context.Background(), &v))
	return &v
}

func (e *testEnv) pkg(t *testing.T, days int, price string) *model.MembershipPackage {
	t.Helper()
	p := &model.MembershipPackage{
		Name:         fmt.Sprintf("%d days", days),
		Tier:         model.MembershipTierPremium,
		DurationDays: days,
		PriceUSD:     decimal.RequireFromString(price),
		IsActive:     true,
	}
	require.NoError(t, e.memberships.CreatePackage(context.Background(), p))
	return p
}

func (e *testEnv) countRows(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

func itoa(v uint64) string { return fmt.Sprintf("%d", v) }
