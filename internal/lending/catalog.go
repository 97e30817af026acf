package lending

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database/inventory"
	"github.com/mrlokans/lending/internal/database/reservations"
	"github.com/mrlokans/lending/internal/entities"
)

// AddBook registers a title with all copies on the shelf.
func (s *BorrowService) AddBook(ctx context.Context, title, author, isbn string, copies int) (*entities.Book, error) {
	book := &entities.Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     copies,
		AvailableCopies: copies,
		Status:          entities.BookStatusActive,
	}
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		return inventory.NewRepository(tx).Create(book)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (s *BorrowService) GetBook(ctx context.Context, bookID uint) (*entities.Book, error) {
	var book *entities.Book
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		book, err = inventory.NewRepository(db).GetByID(bookID)
		return err
	})
	return book, err
}

func (s *BorrowService) ListBooks(ctx context.Context, page, pageSize int) ([]entities.Book, int64, error) {
	var (
		books []entities.Book
		total int64
	)
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		books, total, err = inventory.NewRepository(db).List(page, pageSize)
		return err
	})
	return books, total, err
}

// AdjustStock overwrites the three counters of a book. Values breaking
// total = available + borrowed are rejected with ErrInvalidStock.
func (s *BorrowService) AdjustStock(ctx context.Context, bookID uint, total, available, borrowed int) error {
	var before *entities.Book
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		inv := inventory.NewRepository(tx)
		var err error
		before, err = inv.LockByID(bookID)
		if err != nil {
			return err
		}
		if before.DeletedAt.Valid {
			return ErrBookNotFound
		}
		if err := inv.UpdateStock(bookID, total, available, borrowed); err != nil {
			return err
		}
		return s.record(tx, audit.BookEvent(entities.AuditEventStockAdjust, bookID,
			fmt.Sprintf("Stock of book %d set to %d/%d/%d", bookID, total, available, borrowed),
			audit.Metadata{
				"before": []int{before.TotalCopies, before.AvailableCopies, before.BorrowedCopies},
				"after":  []int{total, available, borrowed},
			}))
	})
	if err != nil {
		return err
	}

	log.Info().Uint("book_id", bookID).Int("total", total).Int("available", available).Int("borrowed", borrowed).Msg("Stock adjusted")

	if available > before.AvailableCopies {
		s.copiesAvailable(ctx, bookID)
	}
	return nil
}

// SetBookStatus activates or deactivates a book. Inactive books refuse new
// loans; outstanding loans and the reservation queue are left alone.
func (s *BorrowService) SetBookStatus(ctx context.Context, bookID uint, status entities.BookStatus) (*entities.Book, error) {
	if status != entities.BookStatusActive && status != entities.BookStatusInactive {
		return nil, newError(ErrInvalidState, KindGuard, fmt.Errorf("unknown book status %q", status))
	}

	var book *entities.Book
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		inv := inventory.NewRepository(tx)
		var err error
		book, err = inv.LockByID(bookID)
		if err != nil {
			return err
		}
		if book.DeletedAt.Valid {
			return ErrBookNotFound
		}
		if book.Status == status {
			return nil
		}

		previous := book.Status
		if err := inv.SetStatus(bookID, status); err != nil {
			return err
		}
		book.Status = status
		return s.record(tx, audit.BookEvent(entities.AuditEventBookStatus, bookID,
			fmt.Sprintf("Book %d is now %s", bookID, status),
			audit.Metadata{"previous_status": previous, "status": status}))
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("book_id", bookID).Str("status", string(status)).Msg("Book status set")
	return book, nil
}

// RemoveBook soft-deletes a book. Books with copies on loan or a pending
// reservation queue are refused with ErrInvalidState.
func (s *BorrowService) RemoveBook(ctx context.Context, bookID uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		inv := inventory.NewRepository(tx)
		book, err := inv.LockByID(bookID)
		if err != nil {
			return err
		}
		if book.DeletedAt.Valid {
			return ErrBookNotFound
		}
		if book.BorrowedCopies > 0 {
			return newError(ErrInvalidState, KindGuard, fmt.Errorf("book %d has %d copies on loan", bookID, book.BorrowedCopies))
		}
		queued, err := reservations.NewRepository(tx).GetQueueLength(bookID, entities.ReservationStatusPending)
		if err != nil {
			return err
		}
		if queued > 0 {
			return newError(ErrInvalidState, KindGuard, fmt.Errorf("book %d has %d pending reservations", bookID, queued))
		}

		if err := inv.Delete(bookID); err != nil {
			return err
		}
		return s.record(tx, audit.BookEvent(entities.AuditEventBookRemove, bookID,
			fmt.Sprintf("Book %d removed", bookID),
			audit.Metadata{"total_copies": book.TotalCopies}))
	})
	if err != nil {
		return err
	}

	log.Info().Uint("book_id", bookID).Msg("Book removed")
	return nil
}
