package model

import "time"

type Series struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"size:200;not null"`
	Ebooks    []Ebook   `gorm:"foreignKey:SeriesID"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Series) TableName() string {
	return "series"
}

// Ebook is a purchasable volume; Price is in coins.
type Ebook struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SeriesID  uint64    `gorm:"column:series_id;index;not null"`
	Title     string    `gorm:"size:200;not null"`
	Volume    int       `gorm:"column:volume;not null;default:1"`
	Price     int64     `gorm:"column:price;not null"`
	CoverURL  *string   `gorm:"column:cover_url;size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Ebook) TableName() string {
	return "ebooks"
}
