package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/content-payments/internal/entitlement"
)

// LibraryStore upserts (user, item) grants idempotently.
type LibraryStore interface {
	Upsert(ctx context.Context, grant entitlement.Grant) error
}

// SubscriptionStore mutates the subscription fields of a user.
type SubscriptionStore interface {
	Activate(ctx context.Context, userID int64, plan string, expiresAt time.Time) error
}

var errMissingEntitlementTarget = errors.New("payment has nothing to grant")

// entitlementGranter turns a payment that has just moved to succeeded into
// access. It runs inside the transaction of that transition and is not
// reachable from anywhere else.
type entitlementGranter struct {
	repo          RepositoryAPI
	library       LibraryStore
	subscriptions SubscriptionStore
	logger        *slog.Logger
}

func (g *entitlementGranter) grant(ctx context.Context, p *paymentDatamodel.Payment, paidAt time.Time) error {
	switch p.PaymentType {
	case TypeSingle:
		if p.ItemID == nil {
			return fmt.Errorf("single payment %d: %w", p.ID, errMissingEntitlementTarget)
		}
		return g.grantItem(ctx, p, *p.ItemID, p.Amount, paidAt)

	case TypeBundle:
		items, err := g.repo.GetBundleItems(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("load bundle items of payment %d: %w", p.ID, err)
		}
		if len(items) == 0 {
			return fmt.Errorf("bundle payment %d: %w", p.ID, errMissingEntitlementTarget)
		}
		for _, it := range items {
			if err := g.grantItem(ctx, p, it.ItemID, it.AllocatedPrice, paidAt); err != nil {
				return err
			}
		}
		return nil

	case TypeSubscription:
		if p.SubscriptionType == nil || !SubscriptionType(*p.SubscriptionType).Valid() {
			return fmt.Errorf("subscription payment %d: %w", p.ID, errMissingEntitlementTarget)
		}
		plan := SubscriptionType(*p.SubscriptionType)
		expiresAt := plan.ExpiresAt(paidAt)
		if err := g.subscriptions.Activate(ctx, p.UserID, string(plan), expiresAt); err != nil {
			return fmt.Errorf("activate subscription for payment %d: %w", p.ID, err)
		}
		g.logger.Info("subscription activated",
			"payment_id", p.ID,
			"user_id", p.UserID,
			"subscription_type", plan,
			"expires_at", expiresAt)
		return nil
	}

	return fmt.Errorf("payment %d has unknown type %q", p.ID, p.PaymentType)
}

func (g *entitlementGranter) grantItem(ctx context.Context, p *paymentDatamodel.Payment, itemID int64, price decimal.Decimal, paidAt time.Time) error {
	err := g.library.Upsert(ctx, entitlement.Grant{
		UserID:        p.UserID,
		ItemID:        itemID,
		PurchasePrice: price,
		PurchasedAt:   paidAt,
	})
	if err != nil {
		return fmt.Errorf("grant item %d for payment %d: %w", itemID, p.ID, err)
	}
	g.logger.Info("library entry granted",
		"payment_id", p.ID,
		"user_id", p.UserID,
		"item_id", itemID,
		"purchase_price", price.String())
	return nil
}
