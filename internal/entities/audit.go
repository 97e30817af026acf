package entities

import "time"

type AuditEventType string

const (
	AuditEventBorrow              AuditEventType = "borrow"
	AuditEventReturn              AuditEventType = "return"
	AuditEventBorrowOverdue       AuditEventType = "borrow_overdue"
	AuditEventReserve             AuditEventType = "reserve"
	AuditEventReservationCancel   AuditEventType = "reservation_cancel"
	AuditEventReservationComplete AuditEventType = "reservation_complete"
	AuditEventReservationExpire   AuditEventType = "reservation_expire"
	AuditEventStockAdjust         AuditEventType = "stock_adjust"
	AuditEventBookStatus          AuditEventType = "book_status"
	AuditEventBookRemove          AuditEventType = "book_remove"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
)

type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action      string         `gorm:"size:100" json:"action"`      // e.g., "borrow", "scan_overdue"
	Description string         `gorm:"size:500" json:"description"` // Human-readable summary
	EntityType  string         `gorm:"size:50" json:"entity_type"`  // "borrow_record", "reservation_record", "book"
	EntityID    *uint          `gorm:"index" json:"entity_id,omitempty"`
	BookID      uint           `gorm:"index" json:"book_id"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
