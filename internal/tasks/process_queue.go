package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/lending"
	"github.com/mrlokans/lending/internal/retry"
)

// QueueProcessor promotes the head of a book's reservation queue.
type QueueProcessor interface {
	ProcessReservationQueue(ctx context.Context, bookID uint) (*entities.ReservationRecord, error)
}

// ProcessReservationQueueTask asks for the reservation queue of one book to be
// processed after a copy was returned or stock was raised.
type ProcessReservationQueueTask struct {
	BookID uint `json:"book_id"`
}

func (t ProcessReservationQueueTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "process_reservation_queue",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     1 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ProcessReservationQueueProcessor runs queue processing with in-process
// retries for contention. Guard failures such as an empty queue or a missing
// book complete the task, since running it again cannot change the outcome.
func ProcessReservationQueueProcessor(processor QueueProcessor) backlite.QueueProcessor[ProcessReservationQueueTask] {
	return func(ctx context.Context, task ProcessReservationQueueTask) error {
		if processor == nil {
			return fmt.Errorf("reservation queue processor not configured")
		}
		_, err := processQueue(ctx, processor, task.BookID)
		return err
	}
}

func processQueue(ctx context.Context, processor QueueProcessor, bookID uint) (*entities.ReservationRecord, error) {
	var promoted *entities.ReservationRecord
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		promoted, err = processor.ProcessReservationQueue(ctx, bookID)
		return err
	}, retry.WithName("process_reservation_queue"))

	switch {
	case err == nil && promoted == nil:
		log.Debug().Uint("book_id", bookID).Msg("reservation queue has nothing to promote")
		return nil, nil
	case err == nil:
		log.Info().Uint("book_id", bookID).Uint("reservation_id", promoted.ID).Uint("user_id", promoted.UserID).
			Msg("reservation promoted")
		return promoted, nil
	case lending.IsGuard(err):
		log.Debug().Uint("book_id", bookID).Str("code", string(lending.CodeOf(err))).Msg("reservation queue not processed")
		return nil, nil
	default:
		return nil, fmt.Errorf("process reservation queue for book %d: %w", bookID, err)
	}
}

func NewProcessReservationQueueQueue(processor QueueProcessor) backlite.Queue {
	return backlite.NewQueue(ProcessReservationQueueProcessor(processor))
}
