package lending

import (
	"context"
	"time"

	"github.com/mrlokans/lending/internal/entities"
)

const (
	DefaultMaxBorrow      = 5
	DefaultBorrowPeriod   = 14 * 24 * time.Hour
	DefaultReservationTTL = 72 * time.Hour
)

// Policy holds the lending rules shared by both services.
type Policy struct {
	MaxBorrow      int
	BorrowPeriod   time.Duration
	ReservationTTL time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxBorrow:      DefaultMaxBorrow,
		BorrowPeriod:   DefaultBorrowPeriod,
		ReservationTTL: DefaultReservationTTL,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxBorrow <= 0 {
		p.MaxBorrow = DefaultMaxBorrow
	}
	if p.BorrowPeriod <= 0 {
		p.BorrowPeriod = DefaultBorrowPeriod
	}
	if p.ReservationTTL <= 0 {
		p.ReservationTTL = DefaultReservationTTL
	}
	return p
}

// QueueTrigger is told when a return or a stock adjustment frees a copy of a
// book. Implementations usually run ProcessReservationQueue for that book, now or later.
type QueueTrigger interface {
	CopiesAvailable(ctx context.Context, bookID uint) error
}

// Notifier receives the records moved by the background scans and queue processing.
type Notifier interface {
	ReservationReady(ctx context.Context, record entities.ReservationRecord) error
	BorrowsOverdue(ctx context.Context, records []entities.BorrowRecord) error
	ReservationsExpired(ctx context.Context, records []entities.ReservationRecord) error
}

type options struct {
	clock    Clock
	trigger  QueueTrigger
	notifier Notifier
	audit    bool
}

func defaultOptions() options {
	return options{clock: SystemClock{}, audit: true}
}

type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithQueueTrigger registers the hook run after a copy becomes available.
func WithQueueTrigger(t QueueTrigger) Option {
	return func(o *options) {
		o.trigger = t
	}
}

// WithNotifier registers the receiver of scan and queue results.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithAudit turns writing audit events inside lending transactions on or off.
func WithAudit(enabled bool) Option {
	return func(o *options) {
		o.audit = enabled
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
