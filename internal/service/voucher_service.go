package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shinyyama/novelshelf-backend/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VoucherQuote is the outcome of a successful evaluation. Nothing is
// written until RecordUsage.
type VoucherQuote struct {
	VoucherID     uint64
	Code          string
	DiscountType  model.DiscountType
	DiscountValue decimal.Decimal
	Scope         model.VoucherScope
	Gross         decimal.Decimal
	Discount      decimal.Decimal
	Final         decimal.Decimal
}

type VoucherService interface {
	Evaluate(ctx context.Context, code, uid string, scope model.VoucherScope, gross decimal.Decimal) (*VoucherQuote, error)
	RecordUsage(ctx context.Context, voucherID uint64, uid string, scope model.VoucherScope, reference string, discount decimal.Decimal) error
}

type voucherService struct {
	repo repository.VoucherRepository
	now  func() time.Time
}

func NewVoucherService(repo repository.VoucherRepository) VoucherService {
	return &voucherService{repo: repo, now: time.Now}
}

func NormalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *voucherService) Evaluate(ctx context.Context, code, uid string, scope model.VoucherScope, gross decimal.Decimal) (*VoucherQuote, error) {
	code = NormalizeVoucherCode(code)
	ve := &ValidationError{}
	if code == "" {
		ve.Add("code", "required")
	}
	if uid == "" {
		ve.Add("uid", "required")
	}
	if scope != model.VoucherScopeEbook && scope != model.VoucherScopeMembership {
		ve.Add("type", "must be ebook or membership")
	}
	if gross.IsNegative() {
		ve.Add("amount", "must not be negative")
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}

	v, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, fmt.Errorf("find voucher: %w", err)
	}
	if !v.ValidAt(s.now()) {
		return nil, ErrVoucherExpired
	}
	if !v.Covers(scope) {
		return nil, ErrVoucherScopeMismatch
	}
	// Pending membership purchases hold a claim on the voucher until they
	// complete or are cancelled.
	if v.PerUserLimit > 0 {
		used, err := s.repo.CountUsage(ctx, v.ID, uid, scope)
		if err != nil {
			return nil, fmt.Errorf("count voucher usage: %w", err)
		}
		if scope == model.VoucherScopeMembership {
			held, err := s.repo.CountPendingClaims(ctx, v.ID, uid)
			if err != nil {
				return nil, fmt.Errorf("count voucher claims: %w", err)
			}
			used += held
		}
		if used >= int64(v.PerUserLimit) {
			return nil, ErrVoucherUsageLimit
		}
	}
	if v.TotalLimit > 0 {
		used, err := s.repo.CountAllUsage(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("count voucher usage: %w", err)
		}
		held, err := s.repo.CountPendingClaims(ctx, v.ID, "")
		if err != nil {
			return nil, fmt.Errorf("count voucher claims: %w", err)
		}
		if used+held >= int64(v.TotalLimit) {
			return nil, ErrVoucherUsageLimit
		}
	}

	discount := computeDiscount(v.DiscountType, v.DiscountValue, gross, roundingPlaces(scope))
	return &VoucherQuote{
		VoucherID:     v.ID,
		Code:          v.Code,
		DiscountType:  v.DiscountType,
		DiscountValue: v.DiscountValue,
		Scope:         scope,
		Gross:         gross,
		Discount:      discount,
		Final:         gross.Sub(discount),
	}, nil
}

func (s *voucherService) RecordUsage(ctx context.Context, voucherID uint64, uid string, scope model.VoucherScope, reference string, discount decimal.Decimal) error {
	if voucherID == 0 {
		return nil
	}
	return s.repo.CreateUsage(ctx, &model.VoucherUsage{
		VoucherID:      voucherID,
		UserUID:        uid,
		Scope:          scope,
		Reference:      reference,
		DiscountAmount: discount,
		UsedAt:         s.now(),
	})
}

// Coins are whole units; membership prices are USD cents.
func roundingPlaces(scope model.VoucherScope) int32 {
	if scope == model.VoucherScopeEbook {
		return 0
	}
	return 2
}

// computeDiscount always lands in [0, gross].
func computeDiscount(typ model.DiscountType, value, gross decimal.Decimal, places int32) decimal.Decimal {
	var d decimal.Decimal
	switch typ {
	case model.DiscountTypePercent:
		d = gross.Mul(value).Div(decimal.NewFromInt(100)).Round(places)
	case model.DiscountTypeFixed:
		d = decimal.Min(value, gross)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(gross) {
		return gross
	}
	return d
}
