package model

import "time"

type LedgerReason string

const (
	LedgerReasonCheckout   LedgerReason = "checkout"
	LedgerReasonAdminGrant LedgerReason = "admin_grant"
	LedgerReasonTopUp      LedgerReason = "top_up"
	LedgerReasonRefund     LedgerReason = "refund"
)

// CoinLedgerEntry is an append-only record of every balance change.
type CoinLedgerEntry struct {
	ID           uint64       `gorm:"primaryKey;autoIncrement"`
	UserUID      string       `gorm:"column:user_uid;size:128;index;not null"`
	Change       int64        `gorm:"column:change;not null"`
	BalanceAfter int64        `gorm:"column:balance_after;not null"`
	Reason       LedgerReason `gorm:"column:reason;size:32;not null"`
	Reference    string       `gorm:"column:reference;size:64;index"`
	CreatedAt    time.Time    `gorm:"autoCreateTime"`
}

func (CoinLedgerEntry) TableName() string {
	return "coin_ledger_entries"
}
