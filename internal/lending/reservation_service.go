package lending

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/audit"
	"github.com/mrlokans/lending/internal/database/inventory"
	"github.com/mrlokans/lending/internal/database/reservations"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/pool"
)

// ReservationService runs the per-book reservation queues.
//
// Every queue change locks the book row first, so changes to one queue are
// serialized while different books proceed in parallel.
type ReservationService struct {
	core
}

func NewReservationService(p *pool.Pool, policy Policy, opts ...Option) *ReservationService {
	return &ReservationService{core: newCore(p, policy, opts)}
}

// Reserve puts the user at the tail of the book's queue and returns the new reservation id.
// Copies do not need to be available.
func (s *ReservationService) Reserve(ctx context.Context, userID, bookID uint) (uint, error) {
	now := s.now()
	record := &entities.ReservationRecord{
		UserID:          userID,
		BookID:          bookID,
		ReservationDate: now,
		ExpireDate:      now.Add(s.policy.ReservationTTL),
		Status:          entities.ReservationStatusPending,
	}

	err := s.session(ctx, func(sess *pool.Session) error {
		if _, err := inventory.NewRepository(sess.DB).GetByID(bookID); err != nil {
			return err
		}
		pending, err := reservations.NewRepository(sess.DB).HasPending(userID, bookID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicateReservation
		}

		return sess.Transaction(func(tx *gorm.DB) error {
			book, err := inventory.NewRepository(tx).LockByID(bookID)
			if err != nil {
				return err
			}
			if book.DeletedAt.Valid {
				return raceLost(ErrBookNotFound, nil)
			}

			repo := reservations.NewRepository(tx)
			pending, err := repo.HasPending(userID, bookID)
			if err != nil {
				return err
			}
			if pending {
				return raceLost(ErrDuplicateReservation, nil)
			}

			if err := repo.Add(record); err != nil {
				return fmt.Errorf("failed to create reservation: %w", err)
			}

			return s.record(tx, audit.ReservationEvent(entities.AuditEventReserve, record,
				fmt.Sprintf("User %d reserved book %d", userID, bookID),
				audit.Metadata{"queue_position": record.QueuePosition, "expire_date": record.ExpireDate}))
		})
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Uint("user_id", userID).
		Uint("book_id", bookID).
		Uint("reservation_id", record.ID).
		Int("queue_position", record.QueuePosition).
		Msg("Book reserved")

	return record.ID, nil
}

func (s *ReservationService) CancelReservation(ctx context.Context, reservationID uint) (bool, error) {
	_, err := s.leaveQueue(ctx, reservationID, entities.AuditEventReservationCancel,
		func(repo *reservations.Repository) (*entities.ReservationRecord, error) {
			return repo.Cancel(reservationID)
		})
	return err == nil, err
}

// CompleteReservation marks the reservation fulfilled. The loan itself is granted separately.
func (s *ReservationService) CompleteReservation(ctx context.Context, reservationID uint) (bool, error) {
	now := s.now()
	_, err := s.leaveQueue(ctx, reservationID, entities.AuditEventReservationComplete,
		func(repo *reservations.Repository) (*entities.ReservationRecord, error) {
			return repo.Complete(reservationID, now)
		})
	return err == nil, err
}

func (s *ReservationService) ExpireReservation(ctx context.Context, reservationID uint) (bool, error) {
	_, err := s.leaveQueue(ctx, reservationID, entities.AuditEventReservationExpire,
		func(repo *reservations.Repository) (*entities.ReservationRecord, error) {
			return repo.Expire(reservationID)
		})
	return err == nil, err
}

// leaveQueue locks the record's book, applies the transition (which recomputes
// the queue) and writes the audit event, all in one transaction.
func (s *ReservationService) leaveQueue(
	ctx context.Context,
	reservationID uint,
	eventType entities.AuditEventType,
	transition func(repo *reservations.Repository) (*entities.ReservationRecord, error),
) (*entities.ReservationRecord, error) {
	var record *entities.ReservationRecord

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		repo := reservations.NewRepository(tx)
		current, err := repo.GetByID(reservationID)
		if err != nil {
			return err
		}
		if !current.IsPending() {
			return newError(ErrInvalidState, KindGuard, fmt.Errorf("reservation %d is %s", reservationID, current.Status))
		}
		if _, err := inventory.NewRepository(tx).LockByID(current.BookID); err != nil {
			return err
		}

		record, err = transition(repo)
		if err != nil {
			return err
		}

		return s.record(tx, audit.ReservationEvent(eventType, record,
			fmt.Sprintf("Reservation %d is %s", record.ID, record.Status),
			audit.Metadata{"previous_position": current.QueuePosition}))
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint("reservation_id", record.ID).
		Uint("book_id", record.BookID).
		Str("status", string(record.Status)).
		Msg("Reservation left queue")

	return record, nil
}

// ProcessReservationQueue completes the head of the book's queue when a copy
// is on the shelf. It returns the completed record, or nil when nothing was done.
func (s *ReservationService) ProcessReservationQueue(ctx context.Context, bookID uint) (*entities.ReservationRecord, error) {
	now := s.now()
	var completed *entities.ReservationRecord

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		book, err := inventory.NewRepository(tx).LockByID(bookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return nil
		}

		repo := reservations.NewRepository(tx)
		head, err := repo.GetQueueHead(bookID)
		if errors.Is(err, reservations.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		completed, err = repo.Complete(head.ID, now)
		if err != nil {
			return err
		}

		return s.record(tx, audit.ReservationEvent(entities.AuditEventReservationComplete, completed,
			fmt.Sprintf("Reservation %d reached the head of the queue with a copy available", completed.ID),
			audit.Metadata{"available_copies": book.AvailableCopies}))
	})
	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, nil
	}

	log.Info().
		Uint("reservation_id", completed.ID).
		Uint("user_id", completed.UserID).
		Uint("book_id", bookID).
		Msg("Reservation ready")

	if s.opts.notifier != nil {
		if err := s.opts.notifier.ReservationReady(ctx, *completed); err != nil {
			log.Error().Err(err).Uint("reservation_id", completed.ID).Msg("Failed to publish reservation notification")
		}
	}
	return completed, nil
}

// ScanExpiredReservations expires every pending reservation past its expire
// date in one transaction, recomputes the affected queues and returns the
// expired records. Books are locked before their reservation rows.
func (s *ReservationService) ScanExpiredReservations(ctx context.Context) ([]entities.ReservationRecord, error) {
	scanID := uuid.NewString()
	now := s.now()
	var expired []entities.ReservationRecord

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		repo := reservations.NewRepository(tx)
		bookIDs, err := repo.ExpiredBooks(now)
		if err != nil {
			return fmt.Errorf("failed to scan expired reservations: %w", err)
		}
		if len(bookIDs) == 0 {
			return nil
		}

		// Books before reservation rows, as in every other queue operation.
		inv := inventory.NewRepository(tx)
		for _, bookID := range bookIDs {
			if _, err := inv.LockByID(bookID); err != nil {
				return err
			}
		}

		candidates, err := repo.ScanExpired(now, bookIDs)
		if err != nil {
			return fmt.Errorf("failed to scan expired reservations: %w", err)
		}
		bookIDs = affectedBooks(candidates)

		for _, record := range candidates {
			ok, err := repo.MarkExpired(record.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			previous := record.QueuePosition
			record.Status = entities.ReservationStatusExpired
			record.QueuePosition = 0
			if err := s.record(tx, audit.ReservationEvent(entities.AuditEventReservationExpire, &record,
				fmt.Sprintf("Reservation %d expired", record.ID),
				audit.Metadata{"scan_id": scanID, "previous_position": previous})); err != nil {
				return err
			}
			expired = append(expired, record)
		}

		for _, bookID := range bookIDs {
			if err := repo.RecomputePositions(bookID, entities.ReservationStatusPending); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("scan_id", scanID).Msg("Reservation expiry scan failed")
		return nil, err
	}

	log.Info().Str("scan_id", scanID).Int("count", len(expired)).Msg("Reservation expiry scan finished")

	if len(expired) > 0 && s.opts.notifier != nil {
		if err := s.opts.notifier.ReservationsExpired(ctx, expired); err != nil {
			log.Error().Err(err).Str("scan_id", scanID).Msg("Failed to publish expiry notifications")
		}
	}
	return expired, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, reservationID uint) (*entities.ReservationRecord, error) {
	var record *entities.ReservationRecord
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		record, err = reservations.NewRepository(db).GetByID(reservationID)
		return err
	})
	return record, err
}

// QueuePosition returns the user's position in the book's pending queue.
func (s *ReservationService) QueuePosition(ctx context.Context, userID, bookID uint) (int, error) {
	var position int
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		position, err = reservations.NewRepository(db).GetUserQueuePosition(userID, bookID, entities.ReservationStatusPending)
		return err
	})
	return position, err
}

// Queue returns the book's pending reservations in queue order.
func (s *ReservationService) Queue(ctx context.Context, bookID uint) ([]entities.ReservationRecord, error) {
	var queue []entities.ReservationRecord
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		queue, err = reservations.NewRepository(db).GetByBook(bookID, entities.ReservationStatusPending)
		return err
	})
	return queue, err
}

func (s *ReservationService) ListUserReservations(ctx context.Context, userID uint, status entities.ReservationStatus, page, pageSize int) ([]entities.ReservationRecord, int64, error) {
	var (
		records []entities.ReservationRecord
		total   int64
	)
	err := s.read(ctx, func(db *gorm.DB) error {
		var err error
		records, total, err = reservations.NewRepository(db).GetByUser(userID, status, page, pageSize)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// affectedBooks returns the distinct book ids in ascending order, the order
// in which their rows are locked.
func affectedBooks(records []entities.ReservationRecord) []uint {
	seen := make(map[uint]struct{}, len(records))
	ids := make([]uint, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.BookID]; ok {
			continue
		}
		seen[r.BookID] = struct{}{}
		ids = append(ids, r.BookID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
