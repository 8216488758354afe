package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Membership is a plan a user can subscribe to.
type Membership struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	BorrowLimit      int             `gorm:"not null" json:"borrow_limit"`
	ReservationLimit int             `gorm:"not null" json:"reservation_limit"`
	DurationDays     int             `gorm:"not null" json:"duration_days"`
	Cost             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cost"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserMembershipMapping is one membership period of a user. Limits are
// copied from the plan when assigned so later plan edits do not change it.
type UserMembershipMapping struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	UserId               int             `gorm:"index;not null" json:"user_id"`
	MembershipId         int             `gorm:"index;not null" json:"membership_id"`
	EffectiveStartDate   time.Time       `gorm:"index;not null" json:"effective_start_date"`
	ExpirationDate       time.Time       `gorm:"index;not null" json:"expiration_date"`
	BorrowLimit          int             `gorm:"not null" json:"borrow_limit"`
	ReservationLimit     int             `gorm:"not null" json:"reservation_limit"`
	MembershipCost       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"membership_cost"`
	Discount             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"discount"`
	PaidAmount           decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"paid_amount"`
	ExpiryReminderSentAt *time.Time      `json:"expiry_reminder_sent_at"`
	IsActive             bool            `gorm:"not null;default:true" json:"is_active"`
	Version              int             `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActiveAt reports whether the mapping covers t.
func (m *UserMembershipMapping) IsActiveAt(t time.Time) bool {
	return !m.EffectiveStartDate.After(t) && m.ExpirationDate.After(t)
}
