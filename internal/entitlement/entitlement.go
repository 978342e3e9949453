package entitlement

import (
	"time"

	"github.com/shopspring/decimal"

	entitlementDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/entitlement"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
)

// Grant is the write side of a library entry: durable access to one item
// derived from a successful payment.
type Grant struct {
	UserID        int64
	ItemID        int64
	PurchasePrice decimal.Decimal
	PurchasedAt   time.Time
}

type LibraryEntry struct {
	ItemID        int64           `json:"item_id"`
	AccessType    string          `json:"access_type"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchasedAt   time.Time       `json:"purchased_at"`
}

type Subscription struct {
	UserID    int64      `json:"user_id"`
	Type      *string    `json:"subscription_type,omitempty"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

func (g Grant) ToDataModel() *entitlementDatamodel.LibraryEntry {
	return &entitlementDatamodel.LibraryEntry{
		UserID:        g.UserID,
		ItemID:        g.ItemID,
		AccessType:    entitlementDatamodel.AccessTypePurchased,
		PurchasePrice: g.PurchasePrice,
		PurchasedAt:   g.PurchasedAt,
	}
}

func FromLibraryDataModel(e *entitlementDatamodel.LibraryEntry) *LibraryEntry {
	return &LibraryEntry{
		ItemID:        e.ItemID,
		AccessType:    e.AccessType,
		PurchasePrice: e.PurchasePrice,
		PurchasedAt:   e.PurchasedAt,
	}
}

// FromUserDataModel reads the subscription columns of a user. A subscription
// whose expiry has passed is reported as inactive even if the stored status
// still says active.
func FromUserDataModel(u *userDatamodel.User, now time.Time) *Subscription {
	sub := &Subscription{
		UserID:    u.ID,
		Type:      u.SubscriptionType,
		Status:    u.SubscriptionStatus,
		ExpiresAt: u.SubscriptionExpiresAt,
	}
	sub.Active = u.SubscriptionStatus == userDatamodel.SubscriptionStatusActive &&
		u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now)
	return sub
}
