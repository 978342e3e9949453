package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/content-payments/internal/core/database"
	entitlementDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/content-payments/internal/entitlement"
)

type LibraryRepository struct {
	db *gorm.DB
}

func NewLibraryRepository(db *gorm.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// Upsert inserts the (user, item) entry or, when one exists, refreshes its
// access type only. purchased_at and purchase_price keep their first values.
func (r *LibraryRepository) Upsert(ctx context.Context, grant entitlement.Grant) error {
	entry := grant.ToDataModel()
	return database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_type", "updated_at"}),
	}).Create(entry).Error
}

func (r *LibraryRepository) ListByUser(ctx context.Context, userID int64) ([]*entitlementDatamodel.LibraryEntry, error) {
	var entries []*entitlementDatamodel.LibraryEntry
	err := database.Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("purchased_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}
