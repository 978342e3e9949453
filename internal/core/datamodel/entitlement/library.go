package entitlement

import (
	"time"

	"github.com/shopspring/decimal"
)

const AccessTypePurchased = "purchased"

type LibraryEntry struct {
	ID            int64           `gorm:"primaryKey" db:"id"`
	UserID        int64           `gorm:"column:user_id;not null;uniqueIndex:ux_library_entries_user_item,priority:1" db:"user_id"`
	ItemID        int64           `gorm:"column:item_id;not null;uniqueIndex:ux_library_entries_user_item,priority:2" db:"item_id"`
	AccessType    string          `gorm:"column:access_type;not null" db:"access_type"`
	PurchasePrice decimal.Decimal `gorm:"column:purchase_price;type:numeric(12,2);not null" db:"purchase_price"`
	PurchasedAt   time.Time       `gorm:"column:purchased_at;not null" db:"purchased_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" db:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (LibraryEntry) TableName() string {
	return "library_entries"
}
