package catalog

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	catalogDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/catalog"
)

type RepositoryAPI interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*catalogDatamodel.Item, error)
	Create(ctx context.Context, item *catalogDatamodel.Item) error
}

// Service is the read side of the catalogue used by checkout.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetItems returns the items found for ids, keyed by id. Unknown ids are
// simply absent from the map.
func (s *Service) GetItems(ctx context.Context, ids []int64) (map[int64]*Item, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return map[int64]*Item{}, nil
	}

	rows, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("failed to load catalogue items", "error", err, "item_ids", ids)
		return nil, err
	}

	items := lo.SliceToMap(rows, func(row *catalogDatamodel.Item) (int64, *Item) {
		return row.ID, FromDataModel(row)
	})

	s.logger.Debug("loaded catalogue items", "requested", len(ids), "found", len(items))
	return items, nil
}
