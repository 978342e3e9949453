package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
)

const historyColumns = `id, external_id, user_id, item_id, amount, currency, payment_type,
	subscription_type, bundle_discount_percent, status, payment_method_id, failure_reason,
	paid_at, refund_amount, refunded_at, processor_refund_id, retry_count, last_retry_at,
	retried_from_id, metadata, created_at, updated_at`

// HistoryRepository is the sqlx read model behind payment history.
type HistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.Payment, int, error) {
	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM payments WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	payments := []*paymentDatamodel.Payment{}
	if total == 0 {
		return payments, 0, nil
	}

	listQuery := r.db.Rebind(`SELECT ` + historyColumns + `
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &payments, listQuery, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	return payments, total, nil
}
