package http

import (
	"context"
	"time"

	dbaudit "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/scheduler"
)

// Each controller depends on the narrow slice of the lending services it calls.

type BorrowAPI interface {
	Borrow(ctx context.Context, userID, bookID uint) (uint, error)
	ReturnBook(ctx context.Context, borrowID uint) (bool, error)
	GetBorrow(ctx context.Context, borrowID uint) (*entities.BorrowRecord, error)
	ListUserBorrows(ctx context.Context, userID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error)
	ListBookBorrows(ctx context.Context, bookID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error)
	ListOverdue(ctx context.Context, page, pageSize int) ([]entities.BorrowRecord, int64, error)
}

type ReservationAPI interface {
	Reserve(ctx context.Context, userID, bookID uint) (uint, error)
	CancelReservation(ctx context.Context, reservationID uint) (bool, error)
	CompleteReservation(ctx context.Context, reservationID uint) (bool, error)
	ProcessReservationQueue(ctx context.Context, bookID uint) (*entities.ReservationRecord, error)
	GetReservation(ctx context.Context, reservationID uint) (*entities.ReservationRecord, error)
	QueuePosition(ctx context.Context, userID, bookID uint) (int, error)
	Queue(ctx context.Context, bookID uint) ([]entities.ReservationRecord, error)
	ListUserReservations(ctx context.Context, userID uint, status entities.ReservationStatus, page, pageSize int) ([]entities.ReservationRecord, int64, error)
}

type CatalogAPI interface {
	AddBook(ctx context.Context, title, author, isbn string, copies int) (*entities.Book, error)
	GetBook(ctx context.Context, bookID uint) (*entities.Book, error)
	ListBooks(ctx context.Context, page, pageSize int) ([]entities.Book, int64, error)
	AdjustStock(ctx context.Context, bookID uint, total, available, borrowed int) error
	SetBookStatus(ctx context.Context, bookID uint, status entities.BookStatus) (*entities.Book, error)
	RemoveBook(ctx context.Context, bookID uint) error
}

type ScanRunner interface {
	RunNow(ctx context.Context, job scheduler.Job) (int64, error)
	IsRunning() bool
	NextRun(job scheduler.Job) *time.Time
}

// TaskStatus reports whether the background task queue is processing work.
type TaskStatus interface {
	Running() bool
}

type AuditReader interface {
	GetEvents(filter dbaudit.Filter, page, pageSize int) ([]entities.AuditEvent, int64, error)
	History(entityType string, entityID uint) ([]entities.AuditEvent, error)
}
