package user

import "time"

const (
	SubscriptionStatusNone   = "none"
	SubscriptionStatusActive = "active"
)

type User struct {
	ID                    int64      `gorm:"primaryKey"`
	Email                 string     `gorm:"column:email;uniqueIndex;not null"`
	Name                  string     `gorm:"column:name;not null"`
	SubscriptionType      *string    `gorm:"column:subscription_type"`
	SubscriptionStatus    string     `gorm:"column:subscription_status;not null;default:none"`
	SubscriptionExpiresAt *time.Time `gorm:"column:subscription_expires_at"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
