package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

// VoucherScope is the usage domain a voucher is evaluated against.
type VoucherScope string

const (
	VoucherScopeMembership VoucherScope = "membership"
	VoucherScopeEbook      VoucherScope = "ebook"
	VoucherScopeBoth       VoucherScope = "both"
)

type Voucher struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	Code          string          `gorm:"column:code;size:64;uniqueIndex;not null"` // stored uppercase
	Description   string          `gorm:"column:description;size:255"`
	DiscountType  DiscountType    `gorm:"column:discount_type;size:16;not null"`
	DiscountValue decimal.Decimal `gorm:"column:discount_value;type:decimal(12,2);not null"`
	AppliesTo     VoucherScope    `gorm:"column:applies_to;size:16;not null"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	StartsAt      *time.Time      `gorm:"column:starts_at"`
	EndsAt        *time.Time      `gorm:"column:ends_at"`
	PerUserLimit  int             `gorm:"column:per_user_limit;not null;default:1"` // 0 = unlimited
	TotalLimit    int             `gorm:"column:total_limit;not null;default:0"`    // 0 = unlimited
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (Voucher) TableName() string {
	return "vouchers"
}

func (v *Voucher) Covers(scope VoucherScope) bool {
	return v.AppliesTo == VoucherScopeBoth || v.AppliesTo == scope
}

// ValidAt reports whether the voucher is switched on and inside its window.
func (v *Voucher) ValidAt(now time.Time) bool {
	if !v.IsActive {
		return false
	}
	if v.StartsAt != nil && now.Before(*v.StartsAt) {
		return false
	}
	if v.EndsAt != nil && !now.Before(*v.EndsAt) {
		return false
	}
	return true
}

type VoucherUsage struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	VoucherID      uint64          `gorm:"column:voucher_id;not null;index:ix_voucher_usages_lookup,priority:1"`
	UserUID        string          `gorm:"column:user_uid;size:128;not null;index:ix_voucher_usages_lookup,priority:2"`
	Scope          VoucherScope    `gorm:"column:scope;size:16;not null;index:ix_voucher_usages_lookup,priority:3"`
	Reference      string          `gorm:"column:reference;size:64"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:decimal(12,2);not null"`
	UsedAt         time.Time       `gorm:"column:used_at;not null"`
}

func (VoucherUsage) TableName() string {
	return "voucher_usages"
}
