package models

import "time"

// OutboxMessage is a notification written in the same DB transaction as the
// state change that caused it. The outbox processor delivers it after commit.
type OutboxMessage struct {
	ID            int               `gorm:"primary_key;index:idx_outbox_due,priority:3" json:"id"`
	Type          OutboxMessageType `gorm:"size:50;not null;index" json:"type"`
	Payload       []byte            `gorm:"type:blob" json:"payload"`
	UserId        int               `gorm:"index" json:"user_id"`
	RetryCount    int               `gorm:"not null;default:0" json:"retry_count"`
	IsProcessed   bool              `gorm:"not null;index:idx_outbox_due,priority:1" json:"is_processed"`
	Status        OutboxStatus      `gorm:"size:20;not null;index" json:"status"` // Pending|Succeeded|Dead
	NextAttemptAt *time.Time        `gorm:"index:idx_outbox_due,priority:2" json:"next_attempt_at"`
	ProcessedAt   *time.Time        `gorm:"index" json:"processed_at"`
	LastError     *string           `gorm:"type:text" json:"last_error"`
	LockedAt      *time.Time        `gorm:"index" json:"locked_at"`
	LockedBy      *string           `gorm:"size:100" json:"locked_by"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditLog is append-only; rows are never updated.
type AuditLog struct {
	ID            int         `gorm:"primary_key" json:"id"`
	EntityType    string      `gorm:"size:50;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityId      int         `gorm:"not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Action        AuditAction `gorm:"size:10;not null" json:"action"`
	Before        string      `gorm:"type:text" json:"before"`
	After         string      `gorm:"type:text" json:"after"`
	Description   string      `gorm:"type:text" json:"description"`
	UserId        *int        `gorm:"index" json:"user_id"`
	UserName      string      `gorm:"size:100" json:"user_name"`
	CorrelationId string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
