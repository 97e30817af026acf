package entities

import "time"

type BorrowStatus string

const (
	BorrowStatusBorrowed        BorrowStatus = "borrowed"
	BorrowStatusReturned        BorrowStatus = "returned"
	BorrowStatusOverdue         BorrowStatus = "overdue"
	BorrowStatusOverdueReturned BorrowStatus = "overdue_returned"
)

// CurrentBorrowStatuses are the statuses counted against a user's borrow limit.
var CurrentBorrowStatuses = []BorrowStatus{BorrowStatusBorrowed, BorrowStatusOverdue}

type BorrowRecord struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	UserID     uint         `gorm:"index;not null" json:"user_id"`
	BookID     uint         `gorm:"index;not null" json:"book_id"`
	BorrowDate time.Time    `gorm:"not null" json:"borrow_date"`
	DueDate    time.Time    `gorm:"index;not null" json:"due_date"`
	ReturnDate *time.Time   `json:"return_date,omitempty"`
	Status     BorrowStatus `gorm:"index;size:20;not null" json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (BorrowRecord) TableName() string {
	return "borrow_records"
}

// IsOpen reports whether the copy is still out with the borrower.
func (r BorrowRecord) IsOpen() bool {
	return r.Status == BorrowStatusBorrowed || r.Status == BorrowStatusOverdue
}
