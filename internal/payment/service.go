package payment

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/frahmantamala/content-payments/internal"
	paymentDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/payment"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type History struct {
	Payments []*Record `json:"payments"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Service answers status and history queries for the owner of a payment.
type Service struct {
	repo    RepositoryAPI
	history HistoryReader
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, history HistoryReader, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		history: history,
		logger:  logger,
	}
}

func (s *Service) GetPayment(ctx context.Context, userID, paymentID int64) (*Record, error) {
	if _, err := loadOwned(ctx, s.repo, userID, paymentID); err != nil {
		return nil, err
	}
	return loadRecord(ctx, s.repo, paymentID)
}

func (s *Service) ListPayments(ctx context.Context, userID int64, limit, offset int) (*History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = lo.Min([]int{limit, MaxHistoryLimit})
	offset = lo.Max([]int{offset, 0})

	rows, total, err := s.history.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list payment history", "error", err, "user_id", userID)
		return nil, internal.NewInternalError("failed to list payments", err)
	}

	return &History{
		Payments: lo.Map(rows, func(p *paymentDatamodel.Payment, _ int) *Record { return FromDataModel(p) }),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}
