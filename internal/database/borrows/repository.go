// Package borrows stores borrow records.
//
// # Usage
//
//	repo := borrows.NewRepository(db)
//	records, total, err := repo.GetByUser(userID, entities.BorrowStatusBorrowed, 1, 20)
package borrows

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
)

var ErrRecordNotFound = errors.New("borrow record not found")

// Filter narrows Count. Zero values match everything.
type Filter struct {
	UserID uint
	BookID uint
	Status entities.BorrowStatus
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Add(record *entities.BorrowRecord) error {
	return r.db.Create(record).Error
}

// Update overwrites every column of the record.
func (r *Repository) Update(record *entities.BorrowRecord) error {
	if record.ID == 0 {
		return ErrRecordNotFound
	}
	res := r.db.Select("*").Omit("created_at").Updates(record)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *Repository) GetByID(id uint) (*entities.BorrowRecord, error) {
	return r.get(r.db, id)
}

// GetByIDForUpdate reads the record with SELECT ... FOR UPDATE.
func (r *Repository) GetByIDForUpdate(id uint) (*entities.BorrowRecord, error) {
	return r.get(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetByUser returns a page of the user's records, newest first. An empty status matches all.
func (r *Repository) GetByUser(userID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	return r.page(r.filtered(Filter{UserID: userID, Status: status}), "borrow_date DESC, id DESC", page, pageSize)
}

// GetByBook returns a page of the book's records, newest first. An empty status matches all.
func (r *Repository) GetByBook(bookID uint, status entities.BorrowStatus, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	return r.page(r.filtered(Filter{BookID: bookID, Status: status}), "borrow_date DESC, id DESC", page, pageSize)
}

// GetOverdue returns a page of borrowed records whose due date is before now.
func (r *Repository) GetOverdue(now time.Time, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	return r.page(r.overdue(r.db, now), "due_date ASC, id ASC", page, pageSize)
}

// ScanOverdue locks and returns every borrowed record whose due date is before now.
func (r *Repository) ScanOverdue(now time.Time) ([]entities.BorrowRecord, error) {
	var records []entities.BorrowRecord
	err := r.overdue(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), now).
		Order("due_date ASC, id ASC").
		Find(&records).Error
	return records, err
}

// MarkOverdue moves a borrowed record to overdue. It returns false when the
// record was no longer borrowed.
func (r *Repository) MarkOverdue(id uint) (bool, error) {
	res := r.db.Model(&entities.BorrowRecord{}).
		Where("id = ? AND status = ?", id, entities.BorrowStatusBorrowed).
		Update("status", entities.BorrowStatusOverdue)
	return res.RowsAffected == 1, res.Error
}

// CountCurrentByUser counts records still out with the user (borrowed or overdue).
func (r *Repository) CountCurrentByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.BorrowRecord{}).
		Where("user_id = ? AND status IN ?", userID, entities.CurrentBorrowStatuses).
		Count(&count).Error
	return count, err
}

func (r *Repository) Count(filter Filter) (int64, error) {
	var count int64
	err := r.filtered(filter).Count(&count).Error
	return count, err
}

func (r *Repository) get(db *gorm.DB, id uint) (*entities.BorrowRecord, error) {
	var record entities.BorrowRecord
	if err := db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) filtered(filter Filter) *gorm.DB {
	query := r.db.Model(&entities.BorrowRecord{})
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID > 0 {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func (r *Repository) overdue(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Model(&entities.BorrowRecord{}).
		Where("status = ? AND due_date < ?", entities.BorrowStatusBorrowed, now)
}

func (r *Repository) page(query *gorm.DB, order string, page, pageSize int) ([]entities.BorrowRecord, int64, error) {
	var (
		records []entities.BorrowRecord
		total   int64
	)
	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := database.Paginate(page, pageSize)
	err := query.Order(order).Limit(limit).Offset(offset).Find(&records).Error
	return records, total, err
}
