// Package inventory stores the per-book copy counters.
//
// The counters (total, available, borrowed) are only changed through single
// conditional UPDATE statements. Each one must affect exactly one row; a miss
// means the guard did not hold and is returned as a sentinel error.
//
// # Usage
//
//	repo := inventory.NewRepository(tx)
//	if err := repo.DecrementAvailable(bookID); errors.Is(err, inventory.ErrNoAvailableCopies) {
//		// lost the race for the last copy
//	}
package inventory

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
)

var (
	ErrBookNotFound        = errors.New("book not found")
	ErrNoAvailableCopies   = errors.New("no available copies")
	ErrAvailableAtCapacity = errors.New("available copies already equal total copies")
	ErrBorrowedAtCapacity  = errors.New("borrowed copies already equal total copies")
	ErrNoBorrowedCopies    = errors.New("no borrowed copies")
	ErrInvalidStock        = errors.New("invalid stock: total must equal available + borrowed and no value may be negative")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a book. Counters must already satisfy the stock invariant.
func (r *Repository) Create(book *entities.Book) error {
	if err := validateStock(book.TotalCopies, book.AvailableCopies, book.BorrowedCopies); err != nil {
		return err
	}
	if book.Status == "" {
		book.Status = entities.BookStatusActive
	}
	return r.db.Create(book).Error
}

// GetByID returns a book that has not been soft-deleted.
func (r *Repository) GetByID(id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.First(&book, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &book, nil
}

// LockByID reads a book with SELECT ... FOR UPDATE. Inside a transaction it
// serializes every queue operation on the same book. Soft-deleted books are
// locked too; check DeletedAt when that matters.
func (r *Repository) LockByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Unscoped().Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &book, nil
}

// List returns a page of books ordered by title.
func (r *Repository) List(page, pageSize int) ([]entities.Book, int64, error) {
	var (
		books []entities.Book
		total int64
	)
	if err := r.db.Model(&entities.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := database.Paginate(page, pageSize)
	err := r.db.Order("title ASC, id ASC").Limit(limit).Offset(offset).Find(&books).Error
	return books, total, err
}

// SetStatus activates or deactivates a book.
func (r *Repository) SetStatus(id uint, status entities.BookStatus) error {
	res := r.db.Model(&entities.Book{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Delete soft-deletes a book.
func (r *Repository) Delete(id uint) error {
	res := r.db.Delete(&entities.Book{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// UpdateStock overwrites all three counters. It is meant for administrative
// stock adjustment and refuses values that break total = available + borrowed.
func (r *Repository) UpdateStock(id uint, total, available, borrowed int) error {
	if err := validateStock(total, available, borrowed); err != nil {
		return err
	}
	res := r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(map[string]any{
		"total_copies":     total,
		"available_copies": available,
		"borrowed_copies":  borrowed,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update stock for book %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (r *Repository) DecrementAvailable(id uint) error {
	return r.step(r.db, id, "available_copies", "available_copies - 1", "available_copies > 0", ErrNoAvailableCopies)
}

// IncrementAvailable also applies to soft-deleted books so outstanding copies can still come back.
func (r *Repository) IncrementAvailable(id uint) error {
	return r.step(r.db.Unscoped(), id, "available_copies", "available_copies + 1", "available_copies < total_copies", ErrAvailableAtCapacity)
}

func (r *Repository) IncrementBorrowed(id uint) error {
	return r.step(r.db, id, "borrowed_copies", "borrowed_copies + 1", "borrowed_copies < total_copies", ErrBorrowedAtCapacity)
}

func (r *Repository) DecrementBorrowed(id uint) error {
	return r.step(r.db.Unscoped(), id, "borrowed_copies", "borrowed_copies - 1", "borrowed_copies > 0", ErrNoBorrowedCopies)
}

// step runs UPDATE books SET column = expr WHERE id = ? AND guard and requires
// exactly one affected row.
func (r *Repository) step(db *gorm.DB, id uint, column, expr, guard string, guardErr error) error {
	res := db.Model(&entities.Book{}).
		Where("id = ?", id).
		Where(guard).
		Update(column, gorm.Expr(expr))
	if res.Error != nil {
		return fmt.Errorf("failed to update %s for book %d: %w", column, id, res.Error)
	}
	if res.RowsAffected != 1 {
		return guardErr
	}
	return nil
}

func validateStock(total, available, borrowed int) error {
	if total < 0 || available < 0 || borrowed < 0 || total != available+borrowed {
		return ErrInvalidStock
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBookNotFound
	}
	return err
}
