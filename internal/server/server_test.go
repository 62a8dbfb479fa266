package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/idgen"
	appmw "github.com/shinyyama/novelshelf-backend/internal/middleware"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/payment"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shinyyama/novelshelf-backend/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tokens maps a bearer token to its uid.
type tokens map[string]string

func (tk tokens) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	uid, ok := tk[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &auth.Token{UID: uid}, nil
}

type apiEnv struct {
	h      http.Handler
	db     *gorm.DB
	ebooks repository.EbookRepository
	ledger service.LedgerService
	pkgs   repository.MembershipRepository
	pub    *events.Recorder
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
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

	ids, err := idgen.New(1)
	require.NoError(t, err)
	log := zap.NewNop()
	pub := &events.Recorder{}
	tx := repository.NewTransactor(db)
	users := repository.NewUserRepository(db)
	ebooks := repository.NewEbookRepository(db)
	cartRepo := repository.NewCartRepository(db)
	purchases := repository.NewPurchaseRepository(db)
	memberships := repository.NewMembershipRepository(db)

	ledger := service.NewLedgerService(tx, users)
	vouchers := service.NewVoucherService(repository.NewVoucherRepository(db))
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), log)
	svcs := Services{
		Cart:     service.NewCartService(tx, cartRepo, ebooks, purchases),
		Vouchers: vouchers,
		Checkout: service.NewCheckoutService(service.CheckoutDeps{
			Tx: tx, Users: users, Cart: cartRepo, Purchases: purchases, Ledger: ledger,
			Vouchers: vouchers, Notifications: notifications, Publisher: pub, IDs: ids, Logger: log,
		}),
		Membership: service.NewMembershipService(service.MembershipDeps{
			Tx: tx, Users: users, Memberships: memberships,
			Webhooks: repository.NewWebhookEventRepository(db), Vouchers: vouchers,
			Notifications: notifications, Gateways: payment.NewRegistry(payment.NewDummy("dummy")),
			Publisher: pub, IDs: ids, Logger: log,
		}, service.MembershipOptions{PublicBaseURL: "https://api.test", FrontendURL: "https://app.test", MaxPrepaidDays: 730}),
		Wallet:        service.NewWalletService(users, ledger, purchases, notifications, pub, log),
		Notifications: notifications,
	}
	authMw := appmw.NewAuthMiddlewareWithVerifier(tokens{"t-reader": "reader", "t-admin": "admin"})
	srv := New(svcs, Options{
		Auth:           authMw.RequireAuth,
		AdminUIDs:      []string{"admin"},
		AllowedOrigins: []string{"https://app.test"},
		Logger:         log,
	})
	return &apiEnv{h: srv.Handler(), db: db, ebooks: ebooks, ledger: ledger, pkgs: memberships, pub: pub}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (e *apiEnv) ebook(t *testing.T, price int64) *model.Ebook {
	t.Helper()
	s := &model.Series{Title: "Series"}
	require.NoError(t, e.ebooks.CreateSeries(context.Background(), s))
	eb := &model.Ebook{SeriesID: s.ID, Title: "Vol 1", Price: price}
	require.NoError(t, e.ebooks.Create(context.Background(), eb))
	return eb
}

func errCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	env, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "missing error envelope: %v", body)
	return env["code"].(string)
}

func TestHealthz(t *testing.T) {
	e := newAPIEnv(t)
	rec, body := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", body["ok"])
	require.NotEmpty(t, rec.Header().Get(appmw.HeaderRequestID))
}

func TestCartAndCheckoutFlow(t *testing.T) {
	e := newAPIEnv(t)
	eb := e.ebook(t, 60)
	_, err := e.ledger.Credit(context.Background(), "reader", 100, model.LedgerReasonAdminGrant, "seed")
	require.NoError(t, err)

	rec, _ := e.do(t, http.MethodPost, "/api/chart/add", "", map[string]uint64{"product_id": eb.ID})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/chart/add", "t-reader", map[string]uint64{"product_id": eb.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, body["added"])

	rec, body = e.do(t, http.MethodPost, "/api/chart/add", "t-reader", map[string]uint64{"product_id": eb.ID})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already_in_cart", errCode(t, body))

	rec, body = e.do(t, http.MethodGet, "/api/me/cart", "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(60), body["total"])

	rec, body = e.do(t, http.MethodPost, "/api/chart/checkout", "t-reader", map[string]string{})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, float64(60), body["charged"])
	require.Equal(t, float64(40), body["balance"])
	require.Len(t, body["purchased"], 1)

	rec, body = e.do(t, http.MethodPost, "/api/chart/checkout", "t-reader", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "empty_cart", errCode(t, body))

	rec, body = e.do(t, http.MethodGet, "/api/me/wallet", "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(40), body["balance"])
	require.Len(t, body["history"], 2)
}

func TestCheckoutReceipt(t *testing.T) {
	e := newAPIEnv(t)
	eb := e.ebook(t, 60)
	_, err := e.ledger.Credit(context.Background(), "reader", 100, model.LedgerReasonAdminGrant, "seed")
	require.NoError(t, err)
	rec, _ := e.do(t, http.MethodPost, "/api/chart/add", "t-reader", map[string]uint64{"product_id": eb.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, body := e.do(t, http.MethodPost, "/api/chart/checkout", "t-reader", map[string]string{})
	require.Equal(t, http.StatusCreated, rec.Code)
	tx, _ := body["transaction_id"].(string)
	require.NotEmpty(t, tx)

	rec, body = e.do(t, http.MethodGet, "/api/me/purchases/"+tx, "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, tx, body["transaction_id"])
	require.Equal(t, float64(60), body["total"])
	require.Len(t, body["items"], 1)

	rec, _ = e.do(t, http.MethodGet, "/api/me/purchases/"+tx, "t-admin", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutInsufficientFunds(t *testing.T) {
	e := newAPIEnv(t)
	eb := e.ebook(t, 150)
	rec, _ := e.do(t, http.MethodPost, "/api/chart/add", "t-reader", map[string]uint64{"product_id": eb.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/chart/checkout", "t-reader", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "insufficient_funds", errCode(t, body))
}

func TestValidationErrorsCarryFields(t *testing.T) {
	e := newAPIEnv(t)
	rec, body := e.do(t, http.MethodPost, "/api/membership/purchase", "t-reader", map[string]interface{}{
		"payment_method": "dummy",
		"email":          "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", errCode(t, body))
	fields := body["error"].(map[string]interface{})["fields"].(map[string]interface{})
	require.Contains(t, fields, "package_id")
	require.Contains(t, fields, "email")
}

func TestVoucherValidate(t *testing.T) {
	e := newAPIEnv(t)
	require.NoError(t, e.db.Create(&model.Voucher{
		Code:          "SAVE20",
		DiscountType:  model.DiscountTypePercent,
		DiscountValue: decimal.NewFromInt(20),
		AppliesTo:     model.VoucherScopeEbook,
		IsActive:      true,
		PerUserLimit:  1,
	}).Error)

	rec, body := e.do(t, http.MethodPost, "/api/vouchers/validate", "t-reader", map[string]interface{}{
		"code": "save20", "type": "ebook", "amount": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	require.Equal(t, "20", data["discount_amount"])
	require.Equal(t, "80", data["final_amount"])

	rec, body = e.do(t, http.MethodPost, "/api/vouchers/validate", "t-reader", map[string]interface{}{
		"code": "save20", "type": "membership", "amount": 10,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "voucher_scope_mismatch", body["code"])
}

func TestMembershipPurchaseAndPoll(t *testing.T) {
	e := newAPIEnv(t)
	pkg := &model.MembershipPackage{
		Name: "Monthly", Tier: model.MembershipTierPremium, DurationDays: 30,
		PriceUSD: decimal.RequireFromString("4.99"), IsActive: true,
	}
	require.NoError(t, e.pkgs.CreatePackage(context.Background(), pkg))

	rec, _ := e.do(t, http.MethodGet, "/api/membership/packages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/membership/purchase", "t-reader", map[string]interface{}{
		"package_id": pkg.ID, "payment_method": "dummy", "email": "reader@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, body["sandbox"])
	statusURL := body["status_url"].(string)

	rec, body = e.do(t, http.MethodGet, statusURL, "t-admin", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = e.do(t, http.MethodGet, statusURL, "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "completed", body["status"])
	require.NotNil(t, body["expires_at"])

	rec, body = e.do(t, http.MethodPost, statusURL+"/cancel", "t-reader", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "purchase_not_pending", errCode(t, body))

	rec, body = e.do(t, http.MethodPost, "/api/membership/purchase", "t-reader", map[string]interface{}{
		"package_id": pkg.ID, "payment_method": "paypal", "email": "reader@example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "payment_method_unavailable", errCode(t, body))
}

func TestMembershipWebhook(t *testing.T) {
	e := newAPIEnv(t)
	rec, body := e.do(t, http.MethodPost, "/api/membership/webhook/unknown", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "unknown_provider", errCode(t, body))

	// An order nobody created is acknowledged so the gateway stops retrying.
	rec, body = e.do(t, http.MethodPost, "/api/membership/webhook/dummy", "", map[string]string{
		"order_id": "DUMMY-INV-404", "status": "paid",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])

	req := httptest.NewRequest(http.MethodPost, "/api/membership/webhook/dummy", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	e.h.ServeHTTP(out, req)
	require.Equal(t, http.StatusBadRequest, out.Code)
}

func TestAdminGrant(t *testing.T) {
	e := newAPIEnv(t)
	rec, _ := e.do(t, http.MethodPost, "/api/admin/users/reader/coins", "t-reader", map[string]interface{}{"amount": 50})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/admin/users/reader/coins", "t-admin", map[string]interface{}{"amount": 50})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(50), body["balance"])
	require.Equal(t, []string{events.TypeCoinsCredited}, e.pub.Types())

	rec, body = e.do(t, http.MethodPost, "/api/admin/users/reader/coins", "t-admin", map[string]interface{}{"amount": -5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", errCode(t, body))

	rec, body = e.do(t, http.MethodGet, "/api/me", "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(50), body["coins"])
	require.Equal(t, "basic", body["membership_tier"])

	rec, body = e.do(t, http.MethodGet, "/api/me/notifications", "t-reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["unread_count"])
}

func TestOriginAllowed(t *testing.T) {
	allow := originAllowed([]string{"https://app.test"})
	for origin, want := range map[string]bool{
		"http://localhost:3000": true,
		"https://app.test":      true,
		"https://evil.test":     false,
		"ftp://app.test":        false,
	} {
		got, err := allow(origin)
		require.NoError(t, err)
		require.Equal(t, want, got, origin)
	}
}
