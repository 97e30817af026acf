// Package notify tells readers about their loans and reservations through a
// message broker.
//
// Routing keys:
//
//	reservation.ready     a reservation reached the head of the queue with a copy available
//	borrow.overdue        a loan passed its due date
//	reservation.expired   a reservation expired before it was fulfilled
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/lending/internal/entities"
)

const (
	KeyReservationReady   = "reservation.ready"
	KeyBorrowOverdue      = "borrow.overdue"
	KeyReservationExpired = "reservation.expired"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the envelope of every published notification.
type Message struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     uint      `json:"user_id"`
	BookID     uint      `json:"book_id"`
	RecordID   uint      `json:"record_id"`
	DueDate    time.Time `json:"due_date,omitempty"`
	ExpireDate time.Time `json:"expire_date,omitempty"`
}

type Notifier struct {
	pub Publisher
	now func() time.Time
}

func New(pub Publisher) *Notifier {
	if pub == nil {
		pub = Discard{}
	}
	return &Notifier{pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

func (n *Notifier) ReservationReady(ctx context.Context, record entities.ReservationRecord) error {
	return n.publish(ctx, Message{
		Type:       KeyReservationReady,
		UserID:     record.UserID,
		BookID:     record.BookID,
		RecordID:   record.ID,
		ExpireDate: record.ExpireDate,
	})
}

// BorrowsOverdue publishes one message per record and returns every failure joined.
func (n *Notifier) BorrowsOverdue(ctx context.Context, records []entities.BorrowRecord) error {
	var errs []error
	for _, record := range records {
		errs = append(errs, n.publish(ctx, Message{
			Type:     KeyBorrowOverdue,
			UserID:   record.UserID,
			BookID:   record.BookID,
			RecordID: record.ID,
			DueDate:  record.DueDate,
		}))
	}
	return errors.Join(errs...)
}

func (n *Notifier) ReservationsExpired(ctx context.Context, records []entities.ReservationRecord) error {
	var errs []error
	for _, record := range records {
		errs = append(errs, n.publish(ctx, Message{
			Type:       KeyReservationExpired,
			UserID:     record.UserID,
			BookID:     record.BookID,
			RecordID:   record.ID,
			ExpireDate: record.ExpireDate,
		}))
	}
	return errors.Join(errs...)
}

func (n *Notifier) Close() error {
	return n.pub.Close()
}

func (n *Notifier) publish(ctx context.Context, msg Message) error {
	msg.ID = uuid.NewString()
	msg.OccurredAt = n.now()
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, msg.Type, body)
}
