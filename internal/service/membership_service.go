package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/archive"
	"github.com/shinyyama/novelshelf-backend/internal/events"
	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/payment"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PurchaseInput struct {
	PackageID     uint64
	PaymentMethod string
	Email         string
	VoucherCode   string
}

type PurchaseResult struct {
	HistoryID     uint64
	InvoiceNumber string
	PaymentURL    string
	StatusURL     string
	Status        model.MembershipPurchaseStatus
	Sandbox       bool
}

type MembershipService interface {
	ListPackages(ctx context.Context) ([]model.MembershipPackage, error)
	Purchase(ctx context.Context, uid string, in PurchaseInput) (*PurchaseResult, error)
	Status(ctx context.Context, uid string, historyID uint64) (*model.MembershipPurchase, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) error
	// Complete moves a pending purchase to completed and extends the user's
	// membership. It reports whether this call made the transition.
	Complete(ctx context.Context, historyID uint64, gatewayTransactionID string) (bool, error)
	Cancel(ctx context.Context, uid string, historyID uint64) (*model.MembershipPurchase, error)
	History(ctx context.Context, uid string) ([]model.MembershipPurchase, error)
}

type MembershipOptions struct {
	// PublicBaseURL receives gateway webhooks.
	PublicBaseURL string
	// FrontendURL is where buyers land after paying or cancelling.
	FrontendURL    string
	MaxPrepaidDays int
}

type MembershipDeps struct {
	Tx            repository.Transactor
	Users         repository.UserRepository
	Memberships   repository.MembershipRepository
	Webhooks      repository.WebhookEventRepository
	Vouchers      VoucherService
	Notifications NotificationService
	Gateways      *payment.Registry
	Publisher     events.Publisher
	Archiver      archive.Archiver
	IDs           IDGenerator
	Logger        *zap.Logger
}

type membershipService struct {
	MembershipDeps
	opts MembershipOptions
	now  func() time.Time
}

func NewMembershipService(deps MembershipDeps, opts MembershipOptions) MembershipService {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifications == nil {
		deps.Notifications = nopNotifications{}
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &membershipService{MembershipDeps: deps, opts: opts, now: time.Now}
}

func (s *membershipService) ListPackages(ctx context.Context) ([]model.MembershipPackage, error) {
	return s.Memberships.ListActivePackages(ctx)
}

func (s *membershipService) Purchase(ctx context.Context, uid string, in PurchaseInput) (*PurchaseResult, error) {
	ve := &ValidationError{}
	if uid == "" {
		ve.Add("uid", "required")
	}
	if in.PackageID == 0 {
		ve.Add("package_id", "required")
	}
	if in.PaymentMethod == "" {
		ve.Add("payment_method", "required")
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}

	pkg, err := s.Memberships.FindPackage(ctx, in.PackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !pkg.IsActive {
		return nil, ErrNotFound
	}
	gw, ok := s.Gateways.Get(in.PaymentMethod)
	if !ok {
		return nil, ErrPaymentMethodUnavailable
	}
	if err := s.checkEligible(ctx, uid); err != nil {
		return nil, err
	}

	p := &model.MembershipPurchase{
		InvoiceNumber: s.IDs.InvoiceNumber(),
		UserUID:       uid,
		PackageID:     pkg.ID,
		Tier:          pkg.Tier,
		DurationDays:  pkg.DurationDays,
		AmountUSD:     pkg.PriceUSD,
		DiscountUSD:   decimal.Zero,
		Email:         strings.TrimSpace(in.Email),
		PaymentMethod: gw.Name(),
		Sandbox:       gw.Sandbox(),
		Status:        model.MembershipPurchasePending,
	}
	res := &PurchaseResult{Sandbox: p.Sandbox}
	var free bool

	err = s.Tx.Transaction(ctx, func(ctx context.Context) error {
		if code := NormalizeVoucherCode(in.VoucherCode); code != "" {
			// The user row lock serialises voucher claims so concurrent
			// purchases cannot both pass the per-user limit.
			if _, err := s.Users.GetForUpdate(ctx, uid); err != nil {
				return err
			}
			quote, err := s.Vouchers.Evaluate(ctx, code, uid, model.VoucherScopeMembership, pkg.PriceUSD)
			if err != nil {
				return err
			}
			p.AmountUSD = quote.Final
			p.DiscountUSD = quote.Discount
			p.VoucherID = uint64Ptr(quote.VoucherID)
		}
		free = !p.AmountUSD.IsPositive()
		if err := s.Memberships.Create(ctx, p); err != nil {
			return fmt.Errorf("create membership purchase: %w", err)
		}
		if free {
			return nil
		}
		order, err := gw.CreateOrder(ctx, payment.OrderRequest{
			InvoiceNumber: p.InvoiceNumber,
			Amount:        p.AmountUSD,
			Currency:      "USD",
			Description:   pkg.Name,
			Email:         p.Email,
			ReturnURL:     s.returnURL(p.ID),
			CancelURL:     s.returnURL(p.ID) + "?cancelled=1",
			NotifyURL:     s.opts.PublicBaseURL + "/api/membership/webhook/" + gw.Name(),
		})
		if err != nil {
			return err
		}
		if err := s.Memberships.SetGatewayOrder(ctx, p.ID, order.OrderID); err != nil {
			return fmt.Errorf("store gateway order: %w", err)
		}
		p.GatewayOrderID = stringPtr(order.OrderID)
		res.PaymentURL = order.PaymentURL
		return nil
	})
	if err != nil {
		if isVoucherRejection(err) {
			return nil, err
		}
		s.Logger.Error("membership purchase not created",
			append(reqctx.Fields(ctx),
				zap.String("uid", uid),
				zap.Uint64("package_id", pkg.ID),
				zap.String("provider", gw.Name()),
				zap.Error(err))...)
		return nil, err
	}

	res.HistoryID = p.ID
	res.InvoiceNumber = p.InvoiceNumber
	res.StatusURL = fmt.Sprintf("/api/membership/status/%d", p.ID)
	res.Status = model.MembershipPurchasePending
	s.publish(ctx, events.TypeMembershipCreated, uid, p.InvoiceNumber, map[string]interface{}{
		"history_id": p.ID,
		"amount_usd": p.AmountUSD.StringFixed(2),
		"provider":   gw.Name(),
		"sandbox":    p.Sandbox,
	})

	if free {
		if _, err := s.Complete(ctx, p.ID, "VOUCHER-"+p.InvoiceNumber); err != nil {
			return nil, err
		}
		res.Status = model.MembershipPurchaseCompleted
		res.PaymentURL = s.returnURL(p.ID)
	}
	return res, nil
}

// checkEligible refuses a purchase when the prepaid premium time left
// already exceeds the configured ceiling.
func (s *membershipService) checkEligible(ctx context.Context, uid string) error {
	if s.opts.MaxPrepaidDays <= 0 {
		return nil
	}
	u, err := s.Users.Get(ctx, uid)
	if err != nil {
		return err
	}
	now := s.now()
	if !u.IsPremium(now) {
		return nil
	}
	limit := now.AddDate(0, 0, s.opts.MaxPrepaidDays)
	if u.MembershipExpiresAt.After(limit) {
		return ErrNotEligible
	}
	return nil
}

func (s *membershipService) returnURL(historyID uint64) string {
	return fmt.Sprintf("%s/membership/status/%d", s.opts.FrontendURL, historyID)
}

// Status returns the caller's purchase. A pending purchase is reconciled
// with its gateway first; gateway trouble leaves it pending.
func (s *membershipService) Status(ctx context.Context, uid string, historyID uint64) (*model.MembershipPurchase, error) {
	p, err := s.findOwned(ctx, uid, historyID)
	if err != nil {
		return nil, err
	}
	if p.IsPending() && p.GatewayOrderID != nil {
		if done, _ := s.reconcile(ctx, p); done {
			if p, err = s.Memberships.FindByID(ctx, historyID); err != nil {
				return nil, err
			}
		}
	}
	if err := s.Notifications.MarkByMembershipPurchase(ctx, uid, p.ID); err != nil {
		s.Logger.Warn("mark notifications read", zap.Uint64("history_id", p.ID), zap.Error(err))
	}
	return p, nil
}

// reconcile asks the gateway about a pending purchase and completes it when
// paid. The error reports a failed status check or completion.
func (s *membershipService) reconcile(ctx context.Context, p *model.MembershipPurchase) (bool, error) {
	fields := append(reqctx.Fields(ctx),
		zap.Uint64("history_id", p.ID),
		zap.String("provider", p.PaymentMethod))
	gw, ok := s.Gateways.Get(p.PaymentMethod)
	if !ok {
		s.Logger.Warn("gateway for pending purchase is not wired", fields...)
		return false, nil
	}
	st, err := gw.CheckStatus(ctx, *p.GatewayOrderID)
	if err != nil {
		s.Logger.Warn("payment status check failed", append(fields, zap.Error(err))...)
		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return false, err
	}
	switch st.State {
	case payment.StatePaid:
		done, err := s.Complete(ctx, p.ID, st.TransactionID)
		if err != nil {
			s.Logger.Error("membership completion failed", append(fields, zap.Error(err))...)
			return false, err
		}
		return done, nil
	case payment.StateFailed:
		s.Logger.Info("gateway reports failed payment; purchase stays pending", append(fields, zap.String("gateway_status", st.RawStatus))...)
	}
	return false, nil
}

func (s *membershipService) HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) error {
	gw, ok := s.Gateways.Get(provider)
	if !ok {
		return ErrUnknownProvider
	}
	ev, err := gw.ParseWebhook(ctx, payload, header)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			s.Logger.Warn("webhook rejected", append(reqctx.Fields(ctx), zap.String("provider", provider))...)
			return ErrInvalidSignature
		}
		if errors.Is(err, payment.ErrGateway) {
			return err
		}
		return NewValidationError("payload", err.Error())
	}
	fields := append(reqctx.Fields(ctx),
		zap.String("provider", provider),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.Type),
		zap.String("order_id", ev.OrderID))

	if err := s.Archiver.Archive(ctx, provider, ev.EventID, payload); err != nil {
		s.Logger.Warn("webhook archive failed", append(fields, zap.Error(err))...)
	}

	row := &model.PaymentWebhookEvent{
		Provider:       provider,
		EventID:        ev.EventID,
		EventType:      ev.Type,
		GatewayOrderID: ev.OrderID,
		Payload:        datatypes.JSON(payload),
		SignatureValid: ev.SignatureValid,
	}
	created, err := s.Webhooks.Record(ctx, row)
	if err != nil {
		return fmt.Errorf("record webhook: %w", err)
	}
	if !created && row.ProcessedAt != nil && row.ProcessingError == "" {
		s.Logger.Info("duplicate webhook ignored", fields...)
		return nil
	}

	procErr := s.applyWebhook(ctx, gw, ev, fields)
	errText := ""
	if procErr != nil {
		errText = procErr.Error()
	}
	if err := s.Webhooks.MarkProcessed(ctx, row.ID, errText); err != nil {
		s.Logger.Warn("webhook bookkeeping failed", append(fields, zap.Error(err))...)
	}
	return procErr
}

func (s *membershipService) applyWebhook(ctx context.Context, gw payment.Gateway, ev *payment.WebhookEvent, fields []zap.Field) error {
	if ev.Kind == payment.EventIgnored {
		return nil
	}
	p, err := s.Memberships.FindByGatewayOrderID(ctx, gw.Name(), ev.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Warn("webhook for unknown order", fields...)
			return nil
		}
		return err
	}
	if !p.IsPending() {
		return nil
	}
	switch ev.Kind {
	case payment.EventPaid:
		_, err := s.Complete(ctx, p.ID, ev.TransactionID)
		return err
	case payment.EventApproved:
		st, err := gw.CheckStatus(ctx, ev.OrderID)
		if err != nil {
			return err
		}
		if st.Paid() {
			_, err := s.Complete(ctx, p.ID, st.TransactionID)
			return err
		}
	case payment.EventFailed:
		s.Logger.Info("gateway reports failed payment; purchase stays pending", append(fields, zap.Uint64("history_id", p.ID))...)
		s.publish(ctx, events.TypeMembershipFailed, p.UserUID, p.InvoiceNumber, map[string]interface{}{
			"history_id": p.ID,
			"provider":   gw.Name(),
			"event_type": ev.Type,
		})
	}
	return nil
}

func (s *membershipService) Complete(ctx context.Context, historyID uint64, gatewayTransactionID string) (bool, error) {
	var (
		done bool
		p    *model.MembershipPurchase
	)
	err := s.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.Memberships.FindByIDForUpdate(ctx, historyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !p.IsPending() {
			return nil
		}
		user, err := s.Users.GetForUpdate(ctx, p.UserUID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		startsAt := now
		if user.MembershipExpiresAt != nil && user.MembershipExpiresAt.After(now) {
			startsAt = user.MembershipExpiresAt.UTC()
		}
		expiresAt := startsAt.AddDate(0, 0, p.DurationDays)

		n, err := s.Memberships.CompleteIfPending(ctx, p.ID, gatewayTransactionID, startsAt, expiresAt, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := s.Users.SetMembership(ctx, p.UserUID, p.Tier, expiresAt); err != nil {
			return fmt.Errorf("extend membership: %w", err)
		}
		if p.VoucherID != nil {
			if err := s.Vouchers.RecordUsage(ctx, *p.VoucherID, p.UserUID, model.VoucherScopeMembership, p.InvoiceNumber, p.DiscountUSD); err != nil {
				return fmt.Errorf("record voucher usage: %w", err)
			}
		}
		p.StartsAt, p.ExpiresAt = &startsAt, &expiresAt
		done = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Logger.Error("membership completion rolled back",
				append(reqctx.Fields(ctx), zap.Uint64("history_id", historyID), zap.Error(err))...)
		}
		return false, err
	}
	if !done {
		return false, nil
	}

	s.Logger.Info("membership completed",
		append(reqctx.Fields(ctx),
			zap.Uint64("history_id", p.ID),
			zap.String("uid", p.UserUID),
			zap.Time("expires_at", *p.ExpiresAt))...)
	s.Notifications.Notify(ctx, p.UserUID, NotificationMembershipCompleted,
		"Membership activated",
		fmt.Sprintf("Your %s membership is active until %s.", p.Tier, p.ExpiresAt.Format("2006-01-02")),
		nil, uint64Ptr(p.ID))
	s.publish(ctx, events.TypeMembershipCompleted, p.UserUID, p.InvoiceNumber, map[string]interface{}{
		"history_id": p.ID,
		"tier":       p.Tier,
		"expires_at": p.ExpiresAt,
	})
	return true, nil
}

func (s *membershipService) Cancel(ctx context.Context, uid string, historyID uint64) (*model.MembershipPurchase, error) {
	p, err := s.findOwned(ctx, uid, historyID)
	if err != nil {
		return nil, err
	}
	// A payment may have been captured without its webhook arriving yet.
	// Ask the gateway before giving up on the order.
	if p.IsPending() && p.GatewayOrderID != nil {
		done, err := s.reconcile(ctx, p)
		if err != nil {
			return nil, err
		}
		if done {
			if p, err = s.Memberships.FindByID(ctx, historyID); err != nil {
				return nil, err
			}
			return p, ErrPurchaseNotPending
		}
	}
	n, err := s.Memberships.CancelIfPending(ctx, p.ID, uid)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return p, ErrPurchaseNotPending
	}
	p.Status = model.MembershipPurchaseCancelled
	s.publish(ctx, events.TypeMembershipCancelled, uid, p.InvoiceNumber, map[string]interface{}{"history_id": p.ID})
	return p, nil
}

func (s *membershipService) History(ctx context.Context, uid string) ([]model.MembershipPurchase, error) {
	if uid == "" {
		return nil, NewValidationError("uid", "required")
	}
	return s.Memberships.ListByUser(ctx, uid)
}

// findOwned hides other users' purchases behind ErrNotFound.
func (s *membershipService) findOwned(ctx context.Context, uid string, historyID uint64) (*model.MembershipPurchase, error) {
	p, err := s.Memberships.FindByID(ctx, historyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.UserUID != uid {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *membershipService) publish(ctx context.Context, typ, uid, ref string, data interface{}) {
	ev := events.Event{Type: typ, UserUID: uid, Reference: ref, Data: data, OccurredAt: s.now().UTC()}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.Logger.Warn("event publish failed", zap.String("type", typ), zap.Error(err))
	}
}
