package model

import "time"

// PurchaseRecord is the receipt and the ownership proof for one ebook.
// Rows are never updated once written.
type PurchaseRecord struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	UserUID       string    `gorm:"column:user_uid;size:128;not null;uniqueIndex:ux_purchase_records_user_ebook,priority:1"`
	EbookID       uint64    `gorm:"column:ebook_id;not null;uniqueIndex:ux_purchase_records_user_ebook,priority:2"`
	TransactionID string    `gorm:"column:transaction_id;size:64;index;not null"`
	PricePaid     int64     `gorm:"column:price_paid;not null"`
	PurchasedAt   time.Time `gorm:"column:purchased_at;not null"`
	Ebook         *Ebook    `gorm:"foreignKey:EbookID"`
}

func (PurchaseRecord) TableName() string {
	return "purchase_records"
}
