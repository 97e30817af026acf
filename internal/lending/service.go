// Package lending implements borrowing, returning and reservation queues on
// top of the inventory, borrow and reservation stores.
//
// Every operation runs on one pooled session. Eligibility is checked with
// plain reads first; the state change then happens in a single transaction
// whose conditional writes are the real guard against concurrent callers.
// Failures are returned as *Error values classified as guard, resource,
// invariant or internal failures.
package lending

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/database"
	dbaudit "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/pool"
)

// core holds what both services share.
type core struct {
	pool   *pool.Pool
	policy Policy
	opts   options
}

func newCore(p *pool.Pool, policy Policy, opts []Option) core {
	return core{pool: p, policy: policy.withDefaults(), opts: applyOptions(opts)}
}

func (c *core) now() time.Time {
	return c.opts.clock.Now()
}

// session runs fn on one pooled session and classifies the error. A session
// whose connection failed is invalidated so the pool replaces it.
func (c *core) session(ctx context.Context, fn func(s *pool.Session) error) error {
	return classify(c.pool.Do(ctx, func(s *pool.Session) error {
		err := fn(s)
		if database.IsConnectionFailure(err) {
			s.Invalidate()
		}
		return err
	}))
}

// transaction runs fn in a transaction on a pooled session.
func (c *core) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.session(ctx, func(s *pool.Session) error {
		return s.Transaction(fn)
	})
}

// read runs fn against a pooled session outside of a transaction.
func (c *core) read(ctx context.Context, fn func(db *gorm.DB) error) error {
	return c.session(ctx, func(s *pool.Session) error {
		return fn(s.DB)
	})
}

// record writes an audit event with the transaction handle of the change it describes.
func (c *core) record(tx *gorm.DB, event *entities.AuditEvent) error {
	if !c.opts.audit {
		return nil
	}
	event.CreatedAt = c.now()
	return dbaudit.NewRepository(tx).LogEvent(event)
}

// copiesAvailable runs the queue trigger. Its failure never fails the caller.
func (c *core) copiesAvailable(ctx context.Context, bookID uint) {
	if c.opts.trigger == nil {
		return
	}
	if err := c.opts.trigger.CopiesAvailable(ctx, bookID); err != nil {
		log.Error().Err(err).Uint("book_id", bookID).Msg("Failed to trigger reservation queue processing")
	}
}
