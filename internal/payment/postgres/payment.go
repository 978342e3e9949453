package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/core/database"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/content-payments/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *paymentDatamodel.Payment) error {
	return database.Conn(ctx, r.db).Create(p).Error
}

func (r *PaymentRepository) CreateBundleItems(ctx context.Context, items []*paymentDatamodel.BundleItem) error {
	if len(items) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Create(&items).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := database.Conn(ctx, r.db).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByExternalID(ctx context.Context, externalID string) ([]*paymentDatamodel.Payment, error) {
	var payments []*paymentDatamodel.Payment
	err := database.Conn(ctx, r.db).Where("external_id = ?", externalID).Order("id ASC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetBundleItems(ctx context.Context, paymentID int64) ([]*paymentDatamodel.BundleItem, error) {
	var items []*paymentDatamodel.BundleItem
	err := database.Conn(ctx, r.db).Where("payment_id = ?", paymentID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id int64, paidAt time.Time, paymentMethodID *string) (bool, error) {
	updates := map[string]interface{}{
		"status":  paymentDatamodel.StatusSucceeded,
		"paid_at": paidAt,
	}
	if paymentMethodID != nil {
		updates["payment_method_id"] = *paymentMethodID
	}
	return r.transition(ctx, id, paymentDatamodel.StatusPending, updates)
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return r.transition(ctx, id, paymentDatamodel.StatusPending, map[string]interface{}{
		"status":         paymentDatamodel.StatusFailed,
		"failure_reason": reason,
	})
}

func (r *PaymentRepository) MarkCanceled(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, paymentDatamodel.StatusPending, map[string]interface{}{
		"status": paymentDatamodel.StatusCanceled,
	})
}

func (r *PaymentRepository) MarkRefunded(ctx context.Context, id int64, refundAmount decimal.Decimal, refundedAt time.Time, refundID string) (bool, error) {
	return r.transition(ctx, id, paymentDatamodel.StatusSucceeded, map[string]interface{}{
		"status":              paymentDatamodel.StatusRefunded,
		"refund_amount":       refundAmount,
		"refunded_at":         refundedAt,
		"processor_refund_id": refundID,
	})
}

func (r *PaymentRepository) IncrementRetry(ctx context.Context, id int64, at time.Time, maxRetries int) (bool, error) {
	result := database.Conn(ctx, r.db).
		Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND status = ? AND retry_count < ?", id, paymentDatamodel.StatusFailed, maxRetries).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepository) RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	event := &paymentDatamodel.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: at,
	}
	result := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// transition is the conditional write behind every state change: the row is
// only touched while it is still in status from. Postgres holds the row lock
// until commit, so a concurrent duplicate sees zero affected rows.
func (r *PaymentRepository) transition(ctx context.Context, id int64, from string, updates map[string]interface{}) (bool, error) {
	result := database.Conn(ctx, r.db).
		Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
