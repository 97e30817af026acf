package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Dispatcher hands "copies available" notifications from the lending services
// to the task queue. With no running client it processes the queue inline.
type Dispatcher struct {
	client    *Client
	processor QueueProcessor
}

func NewDispatcher(client *Client, processor QueueProcessor) *Dispatcher {
	return &Dispatcher{client: client, processor: processor}
}

// SetProcessor wires the processor after construction, for when the reservation
// service itself needs the dispatcher as its trigger.
func (d *Dispatcher) SetProcessor(processor QueueProcessor) {
	d.processor = processor
}

func (d *Dispatcher) CopiesAvailable(ctx context.Context, bookID uint) error {
	if d.client != nil && d.client.Running() {
		ids, err := d.client.Add(ProcessReservationQueueTask{BookID: bookID}).Ctx(ctx).Save()
		if err != nil {
			return fmt.Errorf("enqueue reservation queue processing for book %d: %w", bookID, err)
		}
		log.Debug().Uint("book_id", bookID).Strs("task_ids", ids).Msg("queued reservation queue processing")
		return nil
	}

	if d.processor == nil {
		return fmt.Errorf("reservation queue processor not configured")
	}
	_, err := processQueue(ctx, d.processor, bookID)
	return err
}
