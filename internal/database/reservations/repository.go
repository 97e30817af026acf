// Package reservations stores reservation records and keeps each book's
// pending queue numbered 1..N.
//
// Every operation that adds a record to or removes one from a pending queue
// recomputes the positions of that queue in the same transaction. Positions
// follow reservation_date, with ties broken by id.
//
// # Usage
//
//	repo := reservations.NewRepository(tx)
//	record, err := repo.Cancel(reservationID)
package reservations

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
)

var (
	ErrRecordNotFound = errors.New("reservation record not found")
	ErrNotPending     = errors.New("reservation is not pending")
)

const queueOrder = "reservation_date ASC, id ASC"

// Filter narrows Count. Zero values match everything.
type Filter struct {
	UserID uint
	BookID uint
	Status entities.ReservationStatus
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Add inserts the record and recomputes the queue of its book, atomically.
// On return record.QueuePosition holds the assigned position. Records that
// are not pending are stored with position 0.
func (r *Repository) Add(record *entities.ReservationRecord) error {
	if record.Status == "" {
		record.Status = entities.ReservationStatusPending
	}
	if !record.IsPending() {
		record.QueuePosition = 0
		return r.db.Create(record).Error
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		repo := NewRepository(tx)
		if err := repo.RecomputePositions(record.BookID, record.Status); err != nil {
			return err
		}
		saved, err := repo.GetByID(record.ID)
		if err != nil {
			return err
		}
		record.QueuePosition = saved.QueuePosition
		return nil
	})
}

// Update overwrites every column of the record. It does not touch queue positions.
func (r *Repository) Update(record *entities.ReservationRecord) error {
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

func (r *Repository) GetByID(id uint) (*entities.ReservationRecord, error) {
	return r.get(r.db, id)
}

// GetByIDForUpdate reads the record with SELECT ... FOR UPDATE.
func (r *Repository) GetByIDForUpdate(id uint) (*entities.ReservationRecord, error) {
	return r.get(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetByUser returns a page of the user's records, newest first. An empty status matches all.
func (r *Repository) GetByUser(userID uint, status entities.ReservationStatus, page, pageSize int) ([]entities.ReservationRecord, int64, error) {
	var (
		records []entities.ReservationRecord
		total   int64
	)
	query := r.filtered(Filter{UserID: userID, Status: status}).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit, offset := database.Paginate(page, pageSize)
	err := query.Order("reservation_date DESC, id DESC").Limit(limit).Offset(offset).Find(&records).Error
	return records, total, err
}

// GetByBook returns the book's records in queue order. An empty status matches all.
func (r *Repository) GetByBook(bookID uint, status entities.ReservationStatus) ([]entities.ReservationRecord, error) {
	var records []entities.ReservationRecord
	err := r.filtered(Filter{BookID: bookID, Status: status}).Order(queueOrder).Find(&records).Error
	return records, err
}

func (r *Repository) GetQueueLength(bookID uint, status entities.ReservationStatus) (int64, error) {
	return r.Count(Filter{BookID: bookID, Status: status})
}

// GetUserQueuePosition returns the position of the user's record with the given
// status for the book.
func (r *Repository) GetUserQueuePosition(userID, bookID uint, status entities.ReservationStatus) (int, error) {
	var record entities.ReservationRecord
	err := r.filtered(Filter{UserID: userID, BookID: bookID, Status: status}).
		Order(queueOrder).
		First(&record).Error
	if err != nil {
		return 0, notFound(err)
	}
	return record.QueuePosition, nil
}

// HasPending reports whether the user already waits in the book's queue.
func (r *Repository) HasPending(userID, bookID uint) (bool, error) {
	count, err := r.Count(Filter{UserID: userID, BookID: bookID, Status: entities.ReservationStatusPending})
	return count > 0, err
}

// GetQueueHead returns the pending record with the lowest position.
func (r *Repository) GetQueueHead(bookID uint) (*entities.ReservationRecord, error) {
	var record entities.ReservationRecord
	err := r.filtered(Filter{BookID: bookID, Status: entities.ReservationStatusPending}).
		Order("queue_position ASC, " + queueOrder).
		First(&record).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// RecomputePositions locks the book's records with the given status and
// numbers them 1..N in queue order. Only rows whose position changes are written.
func (r *Repository) RecomputePositions(bookID uint, status entities.ReservationStatus) error {
	var records []entities.ReservationRecord
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND status = ?", bookID, status).
		Order(queueOrder).
		Find(&records).Error
	if err != nil {
		return fmt.Errorf("failed to load queue for book %d: %w", bookID, err)
	}

	for i, record := range records {
		position := i + 1
		if record.QueuePosition == position {
			continue
		}
		err := r.db.Model(&entities.ReservationRecord{}).
			Where("id = ?", record.ID).
			Update("queue_position", position).Error
		if err != nil {
			return fmt.Errorf("failed to reposition reservation %d: %w", record.ID, err)
		}
	}
	return nil
}

func (r *Repository) Cancel(id uint) (*entities.ReservationRecord, error) {
	return r.leaveQueue(id, entities.ReservationStatusCanceled, nil)
}

func (r *Repository) Complete(id uint, confirmedAt time.Time) (*entities.ReservationRecord, error) {
	return r.leaveQueue(id, entities.ReservationStatusCompleted, &confirmedAt)
}

func (r *Repository) Expire(id uint) (*entities.ReservationRecord, error) {
	return r.leaveQueue(id, entities.ReservationStatusExpired, nil)
}

// MarkExpired moves a pending record to expired without recomputing its queue.
// Batch callers recompute once per book afterwards.
func (r *Repository) MarkExpired(id uint) (bool, error) {
	return r.markLeft(r.db, id, entities.ReservationStatusExpired, nil)
}

// ExpiredBooks returns, without locking, the ids of books that have pending
// records whose expire date is before now, in ascending order.
func (r *Repository) ExpiredBooks(now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&entities.ReservationRecord{}).
		Where("status = ? AND expire_date < ?", entities.ReservationStatusPending, now).
		Distinct("book_id").
		Order("book_id ASC").
		Pluck("book_id", &ids).Error
	return ids, err
}

// ScanExpired locks and returns the pending records of the given books whose
// expire date is before now. Callers lock the books first.
func (r *Repository) ScanExpired(now time.Time, bookIDs []uint) ([]entities.ReservationRecord, error) {
	var records []entities.ReservationRecord
	if len(bookIDs) == 0 {
		return records, nil
	}
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND expire_date < ? AND book_id IN ?", entities.ReservationStatusPending, now, bookIDs).
		Order("book_id ASC, " + queueOrder).
		Find(&records).Error
	return records, err
}

func (r *Repository) Count(filter Filter) (int64, error) {
	var count int64
	err := r.filtered(filter).Count(&count).Error
	return count, err
}

// leaveQueue moves a pending record to status, resets its position and
// recomputes the remaining queue in one transaction.
func (r *Repository) leaveQueue(id uint, status entities.ReservationStatus, confirmedAt *time.Time) (*entities.ReservationRecord, error) {
	var record *entities.ReservationRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		ok, err := r.markLeft(tx, id, status, confirmedAt)
		if err != nil {
			return err
		}
		repo := NewRepository(tx)
		record, err = repo.GetByID(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		return repo.RecomputePositions(record.BookID, entities.ReservationStatusPending)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Repository) markLeft(db *gorm.DB, id uint, status entities.ReservationStatus, confirmedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":         status,
		"queue_position": 0,
	}
	if confirmedAt != nil {
		updates["confirmed_date"] = *confirmedAt
	}
	res := db.Model(&entities.ReservationRecord{}).
		Where("id = ? AND status = ?", id, entities.ReservationStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move reservation %d to %s: %w", id, status, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) get(db *gorm.DB, id uint) (*entities.ReservationRecord, error) {
	var record entities.ReservationRecord
	if err := db.First(&record, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

func (r *Repository) filtered(filter Filter) *gorm.DB {
	query := r.db.Model(&entities.ReservationRecord{})
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

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
