package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or alters every table the service owns.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&AuditLog{},
		&Book{},
		&Config{},
		&Membership{},
		&OutboxMessage{},
		&Penalty{},
		&Reservation{},
		&Transaction{},
		&User{},
		&UserMembershipMapping{},
	)
}
