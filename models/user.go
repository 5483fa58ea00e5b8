package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	TierFree    = "free"
	TierPro     = "pro"
	TierPremium = "premium"
)

// User represents the users table. A user acts as project owner on their own
// projects and as producer on pitches they submit elsewhere.
type User struct {
	UserID      uint       `gorm:"primaryKey;column:user_id" json:"user_id"`
	Name        string     `gorm:"column:name" json:"name"`
	Email       string     `gorm:"column:email;uniqueIndex" json:"email"`
	Password    string     `gorm:"column:password" json:"-"`
	Role        string     `gorm:"column:role;default:user" json:"role"`
	AccountTier string     `gorm:"column:account_tier;default:free" json:"account_tier"`
	CreateAt    time.Time  `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt    time.Time  `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt    *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PlatformCommissionRate returns the platform commission percentage applied
// to this user's payouts, determined by account tier.
func (u *User) PlatformCommissionRate() decimal.Decimal {
	switch u.AccountTier {
	case TierPremium:
		return decimal.NewFromInt(6)
	case TierPro:
		return decimal.NewFromInt(8)
	default:
		return decimal.NewFromInt(10)
	}
}
