package entities

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCanceled  ReservationStatus = "canceled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// ReservationRecord is one entry of a book's reservation queue. Pending records
// of a book hold positions 1..N; every other status holds position 0.
type ReservationRecord struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	UserID          uint              `gorm:"index;not null" json:"user_id"`
	BookID          uint              `gorm:"index;not null" json:"book_id"`
	ReservationDate time.Time         `gorm:"index;not null" json:"reservation_date"`
	ExpireDate      time.Time         `gorm:"index;not null" json:"expire_date"`
	ConfirmedDate   *time.Time        `json:"confirmed_date,omitempty"`
	Status          ReservationStatus `gorm:"index;size:20;not null" json:"status"`
	QueuePosition   int               `gorm:"not null;default:0" json:"queue_position"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (ReservationRecord) TableName() string {
	return "reservation_records"
}

func (r ReservationRecord) IsPending() bool {
	return r.Status == ReservationStatusPending
}
