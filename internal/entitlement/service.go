package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/frahmantamala/content-payments/internal"
	entitlementDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/entitlement"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
)

type LibraryRepositoryAPI interface {
	Upsert(ctx context.Context, grant Grant) error
	ListByUser(ctx context.Context, userID int64) ([]*entitlementDatamodel.LibraryEntry, error)
}

type SubscriptionRepositoryAPI interface {
	Activate(ctx context.Context, userID int64, plan string, expiresAt time.Time) error
	GetByUserID(ctx context.Context, userID int64) (*userDatamodel.User, error)
}

// Service exposes what a user is entitled to. Entitlements are only ever
// written by the payment engine through the repositories directly.
type Service struct {
	library       LibraryRepositoryAPI
	subscriptions SubscriptionRepositoryAPI
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(library LibraryRepositoryAPI, subscriptions SubscriptionRepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		library:       library,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *Service) ListLibrary(ctx context.Context, userID int64) ([]*LibraryEntry, error) {
	rows, err := s.library.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list library", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list library: %w", err)
	}

	return lo.Map(rows, func(row *entitlementDatamodel.LibraryEntry, _ int) *LibraryEntry {
		return FromLibraryDataModel(row)
	}), nil
}

func (s *Service) GetSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	u, err := s.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if internal.HasType(err, internal.ErrorTypeNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load subscription", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	return FromUserDataModel(u, s.now()), nil
}
