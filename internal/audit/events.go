package audit

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/lending/internal/entities"
)

const (
	EntityBorrowRecord      = "borrow_record"
	EntityReservationRecord = "reservation_record"
	EntityBook              = "book"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata is the free-form payload stored as JSON next to an event.
type Metadata map[string]any

// BorrowEvent describes a change to a borrow record.
func BorrowEvent(eventType entities.AuditEventType, record *entities.BorrowRecord, description string, md Metadata) *entities.AuditEvent {
	id := record.ID
	return &entities.AuditEvent{
		UserID:      record.UserID,
		BookID:      record.BookID,
		EventType:   eventType,
		Action:      string(eventType),
		Description: truncate(description, 500),
		EntityType:  EntityBorrowRecord,
		EntityID:    &id,
		Metadata:    encode(md),
		Status:      entities.AuditStatusSuccess,
	}
}

// ReservationEvent describes a change to a reservation record.
func ReservationEvent(eventType entities.AuditEventType, record *entities.ReservationRecord, description string, md Metadata) *entities.AuditEvent {
	id := record.ID
	return &entities.AuditEvent{
		UserID:      record.UserID,
		BookID:      record.BookID,
		EventType:   eventType,
		Action:      string(eventType),
		Description: truncate(description, 500),
		EntityType:  EntityReservationRecord,
		EntityID:    &id,
		Metadata:    encode(md),
		Status:      entities.AuditStatusSuccess,
	}
}

// BookEvent describes an administrative change to a book: stock, status or removal.
func BookEvent(eventType entities.AuditEventType, bookID uint, description string, md Metadata) *entities.AuditEvent {
	id := bookID
	return &entities.AuditEvent{
		BookID:      bookID,
		EventType:   eventType,
		Action:      string(eventType),
		Description: truncate(description, 500),
		EntityType:  EntityBook,
		EntityID:    &id,
		Metadata:    encode(md),
		Status:      entities.AuditStatusSuccess,
	}
}

// DecodeMetadata parses the JSON payload of an event.
func DecodeMetadata(event *entities.AuditEvent) (Metadata, error) {
	md := Metadata{}
	if event.Metadata == "" {
		return md, nil
	}
	err := json.UnmarshalFromString(event.Metadata, &md)
	return md, err
}

func encode(md Metadata) string {
	if len(md) == 0 {
		return ""
	}
	s, err := json.MarshalToString(md)
	if err != nil {
		return ""
	}
	return s
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
