package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/catalog"
	"github.com/frahmantamala/content-payments/internal/core/database"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/content-payments/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/metrics"
)

type CatalogReader interface {
	GetItems(ctx context.Context, ids []int64) (map[int64]*catalog.Item, error)
}

type FactoryConfig struct {
	Currency          string
	MonthlyPrice      decimal.Decimal
	YearlyPrice       decimal.Decimal
	MaxBundleDiscount int
}

type IntentOptions struct {
	// Currency, when set, must name the configured currency. Prices carry no
	// currency of their own and are never converted.
	Currency string
	// Metadata is merged into the processor-side metadata.
	Metadata map[string]string
	// RetriedFromID links a retry to the failed record it replaces.
	RetriedFromID *int64
}

// IntentHandle is what the client needs to complete the payment with the
// processor.
type IntentHandle struct {
	PaymentID    int64           `json:"payment_id"`
	IntentID     string          `json:"intent_id"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
}

// IntentFactory prices a purchase, opens an intent with the processor and
// persists the pending record. Nothing is written locally unless the
// processor call succeeded.
type IntentFactory struct {
	processor Processor
	repo      RepositoryAPI
	catalog   CatalogReader
	tx        database.Transactor
	config    FactoryConfig
	logger    *slog.Logger
}

func NewIntentFactory(processor Processor, repo RepositoryAPI, catalog CatalogReader, tx database.Transactor, config FactoryConfig, logger *slog.Logger) *IntentFactory {
	if config.MaxBundleDiscount <= 0 {
		config.MaxBundleDiscount = MaxBundleDiscount
	}
	return &IntentFactory{
		processor: processor,
		repo:      repo,
		catalog:   catalog,
		tx:        tx,
		config:    config,
		logger:    logger,
	}
}

func (f *IntentFactory) CreateSingle(ctx context.Context, userID, itemID int64, opts IntentOptions) (*IntentHandle, error) {
	items, err := f.purchasableItems(ctx, []int64{itemID})
	if err != nil {
		return nil, err
	}
	item := items[0]

	draft := &paymentDatamodel.Payment{
		UserID:        userID,
		ItemID:        &item.ID,
		Amount:        item.Price,
		PaymentType:   TypeSingle,
		RetriedFromID: opts.RetriedFromID,
	}
	metadata := map[string]string{"item_id": strconv.FormatInt(item.ID, 10)}

	return f.create(ctx, draft, nil, metadata, opts)
}

// CreateBundle charges one discounted intent for at least two distinct items.
func (f *IntentFactory) CreateBundle(ctx context.Context, userID int64, itemIDs []int64, discountPercent decimal.Decimal, opts IntentOptions) (*IntentHandle, error) {
	ids := lo.Uniq(itemIDs)
	if len(ids) < MinBundleItems {
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("a bundle needs at least %d distinct items", MinBundleItems),
			internal.ErrCodeBundleTooSmall)
	}
	if err := ValidateDiscount(discountPercent, f.config.MaxBundleDiscount); err != nil {
		return nil, err
	}

	items, err := f.purchasableItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	prices := lo.Map(items, func(it *catalog.Item, _ int) decimal.Decimal { return it.Price })
	total := BundleTotal(prices, discountPercent)
	if !total.IsPositive() {
		return nil, internal.NewInvalidRequestError("bundle total must be greater than 0", internal.ErrCodeInvalidAmount)
	}

	shares := AllocateBundle(prices, total)
	bundle := make([]*paymentDatamodel.BundleItem, len(items))
	for i, it := range items {
		bundle[i] = &paymentDatamodel.BundleItem{
			ItemID:         it.ID,
			UnitPrice:      it.Price,
			AllocatedPrice: shares[i],
		}
	}

	discount := discountPercent
	draft := &paymentDatamodel.Payment{
		UserID:                userID,
		Amount:                total,
		PaymentType:           TypeBundle,
		BundleDiscountPercent: &discount,
		RetriedFromID:         opts.RetriedFromID,
	}
	metadata := map[string]string{
		"item_ids":         joinIDs(ids),
		"discount_percent": discountPercent.String(),
	}

	return f.create(ctx, draft, bundle, metadata, opts)
}

func (f *IntentFactory) CreateSubscription(ctx context.Context, userID int64, subscriptionType SubscriptionType, opts IntentOptions) (*IntentHandle, error) {
	var amount decimal.Decimal
	switch subscriptionType {
	case SubscriptionMonthly:
		amount = f.config.MonthlyPrice
	case SubscriptionYearly:
		amount = f.config.YearlyPrice
	default:
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("unknown subscription type %q", subscriptionType),
			internal.ErrCodeInvalidSubscription)
	}

	plan := string(subscriptionType)
	draft := &paymentDatamodel.Payment{
		UserID:           userID,
		Amount:           amount,
		PaymentType:      TypeSubscription,
		SubscriptionType: &plan,
		RetriedFromID:    opts.RetriedFromID,
	}
	metadata := map[string]string{"subscription_type": plan}

	return f.create(ctx, draft, nil, metadata, opts)
}

// purchasableItems loads ids in order and rejects the request if any of them
// is unknown or cannot be bought.
func (f *IntentFactory) purchasableItems(ctx context.Context, ids []int64) ([]*catalog.Item, error) {
	found, err := f.catalog.GetItems(ctx, ids)
	if err != nil {
		return nil, internal.NewInternalError("failed to load catalogue items", err)
	}

	items := make([]*catalog.Item, 0, len(ids))
	for _, id := range ids {
		item, ok := found[id]
		if !ok || !item.IsPurchasable() {
			return nil, internal.NewInvalidRequestError(
				fmt.Sprintf("item %d is not available for purchase", id),
				internal.ErrCodeItemNotPurchasable)
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *IntentFactory) create(ctx context.Context, draft *paymentDatamodel.Payment, bundle []*paymentDatamodel.BundleItem, metadata map[string]string, opts IntentOptions) (*IntentHandle, error) {
	currency := f.config.Currency
	if requested := strings.ToLower(strings.TrimSpace(opts.Currency)); requested != "" && requested != currency {
		return nil, internal.NewInvalidRequestError(
			fmt.Sprintf("payments are only accepted in %s", strings.ToUpper(currency)),
			internal.ErrCodeUnsupportedCurrency)
	}

	metadata["user_id"] = strconv.FormatInt(draft.UserID, 10)
	metadata["payment_type"] = draft.PaymentType
	if draft.RetriedFromID != nil {
		metadata["retried_from_id"] = strconv.FormatInt(*draft.RetriedFromID, 10)
	}
	for k, v := range opts.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}

	intent, err := f.processor.CreateIntent(ctx, gatewaytypes.IntentRequest{
		Amount:         draft.Amount,
		Currency:       currency,
		Metadata:       metadata,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		f.logger.Error("processor rejected intent creation",
			"error", err,
			"user_id", draft.UserID,
			"payment_type", draft.PaymentType,
			"amount", draft.Amount.String())
		return nil, processorError(err)
	}

	draft.ExternalID = intent.ID
	draft.Currency = currency
	draft.Status = StatusPending
	draft.Metadata = metadata

	err = f.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := f.repo.Create(ctx, draft); err != nil {
			return fmt.Errorf("create payment record: %w", err)
		}
		if len(bundle) == 0 {
			return nil
		}
		for _, it := range bundle {
			it.PaymentID = draft.ID
		}
		if err := f.repo.CreateBundleItems(ctx, bundle); err != nil {
			return fmt.Errorf("create bundle items: %w", err)
		}
		return nil
	})
	if err != nil {
		// The remote intent is left unconfirmed; its webhooks are acknowledged
		// as unknown intents.
		f.logger.Error("failed to persist payment record",
			"error", err,
			"external_id", intent.ID,
			"user_id", draft.UserID)
		return nil, internal.NewInternalError("failed to persist payment", err)
	}

	metrics.IncPayment(draft.PaymentType, "initiated")
	f.logger.Info("payment intent created",
		"payment_id", draft.ID,
		"external_id", draft.ExternalID,
		"user_id", draft.UserID,
		"payment_type", draft.PaymentType,
		"amount", draft.Amount.String(),
		"currency", currency)

	return &IntentHandle{
		PaymentID:    draft.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       draft.Amount,
		Currency:     currency,
		Status:       draft.Status,
	}, nil
}

func joinIDs(ids []int64) string {
	return strings.Join(lo.Map(ids, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ",")
}
