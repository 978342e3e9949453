package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	catalogDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/catalog"
)

type Item struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	IsFree    bool            `json:"is_free"`
	IsVisible bool            `json:"is_visible"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsPurchasable reports whether the item can be sold: visible, not free and
// carrying a positive price.
func (i *Item) IsPurchasable() bool {
	return i.IsVisible && !i.IsFree && i.Price.IsPositive()
}

func NewItem(title string, price decimal.Decimal) *Item {
	now := time.Now()
	return &Item{
		Title:     title,
		Price:     price,
		IsVisible: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ToDataModel(i *Item) *catalogDatamodel.Item {
	return &catalogDatamodel.Item{
		ID:        i.ID,
		Title:     i.Title,
		Price:     i.Price,
		IsFree:    i.IsFree,
		IsVisible: i.IsVisible,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func FromDataModel(i *catalogDatamodel.Item) *Item {
	return &Item{
		ID:        i.ID,
		Title:     i.Title,
		Price:     i.Price,
		IsFree:    i.IsFree,
		IsVisible: i.IsVisible,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}
