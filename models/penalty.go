package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Penalty is a monetary charge. Late fees point at a transaction; user-level
// penalties have no transaction and are keyed by the membership mapping
// they were assessed under.
type Penalty struct {
	ID                      int             `gorm:"primary_key" json:"id"`
	UserId                  int             `gorm:"index:idx_penalty_lookup,priority:1;not null" json:"user_id"`
	TransactionId           *int            `gorm:"index:idx_penalty_lookup,priority:3" json:"transaction_id"`
	UserMembershipMappingId *int            `gorm:"index" json:"user_membership_mapping_id"`
	Status                  PenaltyStatus   `gorm:"size:20;index;not null" json:"status"`
	PenaltyType             PenaltyType     `gorm:"size:50;index:idx_penalty_lookup,priority:2;not null" json:"penalty_type"`
	Description             string          `gorm:"type:text" json:"description"`
	Amount                  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	OverDueDays             *int            `json:"over_due_days"`
	Units                   int             `gorm:"not null;default:0" json:"units"`
	PaidAt                  *time.Time      `json:"paid_at"`
	WaivedAt                *time.Time      `json:"waived_at"`
	IsActive                bool            `gorm:"not null;default:true" json:"is_active"`
	Version                 int             `gorm:"not null;default:1" json:"version"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ChargedDays is the overdue-day count already billed, zero when unset.
func (p *Penalty) ChargedDays() int {
	if p == nil || p.OverDueDays == nil {
		return 0
	}
	return *p.OverDueDays
}

// Config is one rule parameter, e.g. PenaltyPerDay=10.
type Config struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Key         string    `gorm:"size:100;not null;uniqueIndex" json:"key"`
	Value       string    `gorm:"size:255;not null" json:"value"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
