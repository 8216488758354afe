package models

import "time"

// User is read by the engine for notification recipients. Account management lives elsewhere.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:100;not null;unique" json:"email"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Book struct {
	ID              int       `gorm:"primary_key" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Author          string    `gorm:"size:255" json:"author"`
	Isbn            string    `gorm:"size:20;index" json:"isbn"`
	TotalCopies     int       `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:0" json:"available_copies"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	Version         int       `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
