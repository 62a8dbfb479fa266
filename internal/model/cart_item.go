package model

import "time"

type CartItem struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserUID   string    `gorm:"column:user_uid;size:128;not null;uniqueIndex:ux_cart_items_user_ebook,priority:1"`
	EbookID   uint64    `gorm:"column:ebook_id;not null;uniqueIndex:ux_cart_items_user_ebook,priority:2"`
	Ebook     *Ebook    `gorm:"foreignKey:EbookID"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
