package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/frahmantamala/content-payments/internal/catalog"
	"github.com/frahmantamala/content-payments/internal/core/database"
	catalogDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/catalog"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) catalog.RepositoryAPI {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) GetByIDs(ctx context.Context, ids []int64) ([]*catalogDatamodel.Item, error) {
	var items []*catalogDatamodel.Item
	err := database.Conn(ctx, r.db).Where("id IN ?", ids).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *ItemRepository) Create(ctx context.Context, item *catalogDatamodel.Item) error {
	return database.Conn(ctx, r.db).Create(item).Error
}
