package entities

import (
	"time"

	"gorm.io/gorm"
)

type BookStatus string

const (
	BookStatusActive   BookStatus = "active"
	BookStatusInactive BookStatus = "inactive"
)

// Book carries the inventory counters of a title. TotalCopies always equals
// AvailableCopies + BorrowedCopies between transactions.
type Book struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"index;size:512" json:"title"`
	Author          string         `gorm:"index;size:256" json:"author"`
	ISBN            string         `gorm:"index;size:20" json:"isbn,omitempty"`
	TotalCopies     int            `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int            `gorm:"not null;default:0" json:"available_copies"`
	BorrowedCopies  int            `gorm:"not null;default:0" json:"borrowed_copies"`
	Status          BookStatus     `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Book) TableName() string {
	return "books"
}

func (b Book) IsActive() bool {
	return b.Status == BookStatusActive
}
