package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MembershipPackage struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement"`
	Name         string          `gorm:"size:120;not null"`
	Tier         MembershipTier  `gorm:"column:tier;size:16;not null"`
	DurationDays int             `gorm:"column:duration_days;not null"`
	PriceUSD     decimal.Decimal `gorm:"column:price_usd;type:decimal(10,2);not null"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime"`
}

func (MembershipPackage) TableName() string {
	return "membership_packages"
}

type MembershipPurchaseStatus string

const (
	MembershipPurchasePending   MembershipPurchaseStatus = "pending"
	MembershipPurchaseCompleted MembershipPurchaseStatus = "completed"
	MembershipPurchaseFailed    MembershipPurchaseStatus = "failed"
	MembershipPurchaseCancelled MembershipPurchaseStatus = "cancelled"
)

// MembershipPurchase is the history row driven from pending to completed by
// either a gateway webhook or a status poll.
type MembershipPurchase struct {
	ID             uint64                   `gorm:"primaryKey;autoIncrement"`
	InvoiceNumber  string                   `gorm:"column:invoice_number;size:64;uniqueIndex;not null"`
	UserUID        string                   `gorm:"column:user_uid;size:128;index;not null"`
	PackageID      uint64                   `gorm:"column:package_id;index;not null"`
	Tier           MembershipTier           `gorm:"column:tier;size:16;not null"`
	DurationDays   int                      `gorm:"column:duration_days;not null"`
	AmountUSD      decimal.Decimal          `gorm:"column:amount_usd;type:decimal(10,2);not null"`
	DiscountUSD    decimal.Decimal          `gorm:"column:discount_usd;type:decimal(10,2);not null"`
	VoucherID      *uint64                  `gorm:"column:voucher_id"`
	Email          string                   `gorm:"column:email;size:255"`
	PaymentMethod  string                   `gorm:"column:payment_method;size:32;not null"`
	GatewayOrderID *string                  `gorm:"column:gateway_order_id;size:128;uniqueIndex"`
	Sandbox        bool                     `gorm:"column:sandbox;not null;default:false"`
	Status         MembershipPurchaseStatus `gorm:"column:status;size:16;index;not null"`
	StartsAt       *time.Time               `gorm:"column:starts_at"`
	ExpiresAt      *time.Time               `gorm:"column:expires_at"`
	CompletedAt    *time.Time               `gorm:"column:completed_at"`
	TransactionID  string                   `gorm:"column:transaction_id;size:128"`
	CreatedAt      time.Time                `gorm:"autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"autoUpdateTime"`
}

func (MembershipPurchase) TableName() string {
	return "membership_purchases"
}

func (p *MembershipPurchase) IsPending() bool {
	return p.Status == MembershipPurchasePending
}
