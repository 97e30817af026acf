package lending

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database/borrows"
	"github.com/mrlokans/lending/internal/database/inventory"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/pool"
)

// BorrowService grants loans, takes returns and marks overdue loans.
type BorrowService struct {
	core
}

func NewBorrowService(p *pool.Pool, policy Policy, opts ...Option) *BorrowService {
	return &BorrowService{core: newCore(p, policy, opts)}
}

// Borrow lends one copy of the book to the user and returns the new borrow record id.
func (s *BorrowService) Borrow(ctx context.Context, userID, bookID uint) (uint, error) {
	now := s.now()
	record := &entities.BorrowRecord{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.Add(s.policy.BorrowPeriod),
		Status:     entities.BorrowStatusBorrowed,
	}

	err := s.session(ctx, func(sess *pool.Session) error {
		if err := s.checkEligibility(sess.DB, userID, bookID); err != nil {
			return err
		}

		return sess.Transaction(func(tx *gorm.DB) error {
			if err := s.recheckUser(tx, userID); err != nil {
				return err
			}

			inv := inventory.NewRepository(tx)
			if err := inv.DecrementAvailable(bookID); err != nil {
				return err
			}
			if err := inv.IncrementBorrowed(bookID); err != nil {
				return err
			}

			if err := borrows.NewRepository(tx).Add(record); err != nil {
				return fmt.Errorf("failed to create borrow record: %w", err)
			}

			return s.record(tx, audit.BorrowEvent(entities.AuditEventBorrow, record,
				fmt.Sprintf("User %d borrowed book %d", userID, bookID),
				audit.Metadata{"due_date": record.DueDate}))
		})
	})
	if err != nil {
		log.Debug().Err(err).Uint("user_id", userID).Uint("book_id", bookID).Msg("Borrow rejected")
		return 0, err
	}

	log.Info().
		Uint("user_id", userID).
		Uint("book_id", bookID).
		Uint("borrow_id", record.ID).
		Time("due_date", record.DueDate).
		Msg("Book borrowed")

	return record.ID, nil
}

// checkEligibility is the optimistic gate run before the transaction.
func (s *BorrowService) checkEligibility(db *gorm.DB, userID, bookID uint) error {
	book, err := inventory.NewRepository(db).GetByID(bookID)
	if err != nil {
		return err
	}
	if !book.IsActive() {
		return ErrBookInactive
	}
	if book.AvailableCopies <= 0 {
		return ErrNoCopiesAvailable
	}

	repo := borrows.NewRepository(db)
	current, err := repo.CountCurrentByUser(userID)
	if err != nil {
		return err
	}
	if current >= int64(s.policy.MaxBorrow) {
		return ErrBorrowLimitReached
	}

	overdue, err := repo.Count(borrows.Filter{UserID: userID, Status: entities.BorrowStatusOverdue})
	if err != nil {
		return err
	}
	if overdue > 0 {
		return ErrOverdueOutstanding
	}
	return nil
}

// recheckUser repeats the per-user rules inside the transaction. A failure here
// means a concurrent borrow by the same user slipped past the gate.
func (s *BorrowService) recheckUser(tx *gorm.DB, userID uint) error {
	repo := borrows.NewRepository(tx)
	current, err := repo.CountCurrentByUser(userID)
	if err != nil {
		return err
	}
	if current >= int64(s.policy.MaxBorrow) {
		return raceLost(ErrBorrowLimitReached, nil)
	}
	overdue, err := repo.Count(borrows.Filter{UserID: userID, Status: entities.BorrowStatusOverdue})
	if err != nil {
		return err
	}
	if overdue > 0 {
		return raceLost(ErrOverdueOutstanding, nil)
	}
	return nil
}

// ReturnBook closes a borrowed or overdue record and puts the copy back on the shelf.
func (s *BorrowService) ReturnBook(ctx context.Context, borrowID uint) (bool, error) {
	var record *entities.BorrowRecord

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		repo := borrows.NewRepository(tx)
		var err error
		record, err = repo.GetByIDForUpdate(borrowID)
		if err != nil {
			return err
		}
		if !record.IsOpen() {
			return newError(ErrInvalidState, KindGuard, fmt.Errorf("borrow %d is %s", borrowID, record.Status))
		}

		inv := inventory.NewRepository(tx)
		if err := inv.DecrementBorrowed(record.BookID); err != nil {
			return err
		}
		if err := inv.IncrementAvailable(record.BookID); err != nil {
			return err
		}

		now := s.now()
		previous := record.Status
		record.Status = entities.BorrowStatusReturned
		if previous == entities.BorrowStatusOverdue || now.After(record.DueDate) {
			record.Status = entities.BorrowStatusOverdueReturned
		}
		record.ReturnDate = &now
		if err := repo.Update(record); err != nil {
			return fmt.Errorf("failed to update borrow record: %w", err)
		}

		return s.record(tx, audit.BorrowEvent(entities.AuditEventReturn, record,
			fmt.Sprintf("User %d returned book %d", record.UserID, record.BookID),
			audit.Metadata{"previous_status": previous, "status": record.Status}))
	})
	if err != nil {
		return false, err
	}

	log.Info().
		Uint("borrow_id", borrowID).
		Uint("book_id", record.BookID).
		Str("status", string(record.Status)).
		Msg("Book returned")

	s.copiesAvailable(ctx, record.BookID)
	return true, nil
}

// ScanOverdueBorrows moves every borrowed record past its due date to overdue
// in one transaction and returns the moved records.
func (s *BorrowService) ScanOverdueBorrows(ctx context.Context) ([]entities.BorrowRecord, error) {
	scanID := uuid.NewString()
	now := s.now()
	var moved []entities.BorrowRecord

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		repo := borrows.NewRepository(tx)
		records, err := repo.ScanOverdue(now)
		if err != nil {
			return fmt.Errorf("failed to scan overdue borrows: %w", err)
		}
		for _, record := range records {
			ok, err := repo.MarkOverdue(record.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			record.Status = entities.BorrowStatusOverdue
			if err := s.record(tx, audit.BorrowEvent(entities.AuditEventBorrowOverdue, &record,
				fmt.Sprintf("Borrow %d is overdue", record.ID),
				audit.Metadata{"scan_id": scanID, "due_date": record.DueDate})); err != nil {
				return err
			}
			moved = append(moved, record)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("scan_id", scanID).Msg("Overdue scan failed")
		return nil, err
	}

	log.Info().Str("scan_id", scanID).Int("count", len(moved)).Msg("Overdue scan finished")

	if len(moved) > 0 && s.opts.notifier != nil {
		if err := s.opts.notifier.BorrowsOverdue(ctx, moved); err != nil {
			log.Error().Err(err).Str("scan_id", scanID).Msg("Failed to publish overdue notifications")
		}
	}
	return moved, nil
}

func (s *BorrowService) GetBorrow(ctx context.Context, borrowID uint) (*entities.BorrowRecord, error) {
	var record *entities.BorrowRecord
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		record, err = borrows.NewRepository(db).GetByID(borrowID)
		return err
	})
	return record, err
}

func (s *BorrowService) ListUserBorrows(ctx context.Context, userID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	return s.list(ctx, func(repo *borrows.Repository) ([]entities.BorrowRecord, int64, error) {
		return repo.GetByUser(userID, status, page, pageSize)
	})
}

func (s *BorrowService) ListBookBorrows(ctx context.Context, bookID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	return s.list(ctx, func(repo *borrows.Repository) ([]entities.BorrowRecord, int64, error) {
		return repo.GetByBook(bookID, status, page, pageSize)
	})
}

// ListOverdue lists borrowed records past their due date that the scanner has not moved yet.
func (s *BorrowService) ListOverdue(ctx context.Context, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	now := s.now()
	return s.list(ctx, func(repo *borrows.Repository) ([]entities.BorrowRecord, int64, error) {
		return repo.GetOverdue(now, page, pageSize)
	})
}

func (s *BorrowService) list(ctx context.Context, fn func(repo *borrows.Repository) ([]entities.BorrowRecord, int64, error)) ([]entities.BorrowRecord, int64, error) {
	var (
		records []entities.BorrowRecord
		total   int64
	)
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		records, total, err = fn(borrows.NewRepository(db))
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
