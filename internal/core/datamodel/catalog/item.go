package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID        int64           `gorm:"primaryKey"`
	Title     string          `gorm:"column:title;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	IsFree    bool            `gorm:"column:is_free;not null"`
	IsVisible bool            `gorm:"column:is_visible;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string {
	return "items"
}
