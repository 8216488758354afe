package models

import "time"

// Transaction is one borrow of one book copy.
type Transaction struct {
	ID            int               `gorm:"primary_key" json:"id"`
	UserId        int               `gorm:"index;not null" json:"user_id"`
	BookId        int               `gorm:"index;not null" json:"book_id"`
	Status        TransactionStatus `gorm:"size:20;index;not null" json:"status"`
	BorrowDate    time.Time         `gorm:"not null" json:"borrow_date"`
	DueDate       time.Time         `gorm:"index;not null" json:"due_date"`
	RenewDate     *time.Time        `json:"renew_date"`
	RenewCount    int               `gorm:"not null;default:0" json:"renew_count"`
	ReturnDate    *time.Time        `json:"return_date"`
	LostClaimDate *time.Time        `json:"lost_claim_date"`
	IsActive      bool              `gorm:"not null;default:true" json:"is_active"`
	Version       int               `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type Reservation struct {
	ID                      int               `gorm:"primary_key" json:"id"`
	UserId                  int               `gorm:"index;not null" json:"user_id"`
	BookId                  int               `gorm:"index:idx_reservation_queue,priority:1;not null" json:"book_id"`
	Status                  ReservationStatus `gorm:"size:20;index:idx_reservation_queue,priority:2;not null" json:"status"`
	ReservationDate         time.Time         `gorm:"index:idx_reservation_queue,priority:3;not null" json:"reservation_date"`
	AllocateAfter           time.Time         `gorm:"not null" json:"allocate_after"`
	AllocatedAt             *time.Time        `json:"allocated_at"`
	TransferAllocationCount int               `gorm:"not null;default:0" json:"transfer_allocation_count"`
	CancelDate              *time.Time        `json:"cancel_date"`
	CancelReason            string            `gorm:"size:100" json:"cancel_reason"`
	IsActive                bool              `gorm:"not null;default:true" json:"is_active"`
	Version                 int               `gorm:"not null;default:1" json:"version"`
	CreatedAt               time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
