package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/core/database"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Activate stamps the plan, status and expiry on the user row.
func (r *SubscriptionRepository) Activate(ctx context.Context, userID int64, plan string, expiresAt time.Time) error {
	result := database.Conn(ctx, r.db).
		Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"subscription_type":       plan,
			"subscription_status":     userDatamodel.SubscriptionStatusActive,
			"subscription_expires_at": expiresAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
	}
	return nil
}

func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := database.Conn(ctx, r.db).Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}
	return &u, nil
}
