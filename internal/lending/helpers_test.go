package lending

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/pool"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingTrigger struct {
	mu    sync.Mutex
	books []uint
	err   error
}

func (r *recordingTrigger) CopiesAvailable(_ context.Context, bookID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = append(r.books, bookID)
	return r.err
}

func (r *recordingTrigger) Books() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.books...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	ready   []entities.ReservationRecord
	overdue []entities.BorrowRecord
	expired []entities.ReservationRecord
}

func (n *recordingNotifier) ReservationReady(_ context.Context, record entities.ReservationRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, record)
	return nil
}

func (n *recordingNotifier) BorrowsOverdue(_ context.Context, records []entities.BorrowRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.overdue = append(n.overdue, records...)
	return nil
}

func (n *recordingNotifier) ReservationsExpired(_ context.Context, records []entities.ReservationRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, records...)
	return nil
}

type fixture struct {
	db           *gorm.DB
	pool         *pool.Pool
	clock        *fakeClock
	trigger      *recordingTrigger
	notifier     *recordingNotifier
	borrows      *BorrowService
	reservations *ReservationService
}

func setup(t *testing.T, policy Policy) *fixture {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "lending.db"))
	require.NoError(t, err)

	p, err := pool.New(db.DB, pool.Config{Size: 4, AcquireTimeout: 10 * time.Second})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close()
		_ = db.Close()
	})

	f := &fixture{
		db:       db.DB,
		pool:     p,
		clock:    &fakeClock{now: baseTime},
		trigger:  &recordingTrigger{},
		notifier: &recordingNotifier{},
	}
	opts := []Option{WithClock(f.clock), WithQueueTrigger(f.trigger), WithNotifier(f.notifier)}
	f.borrows = NewBorrowService(p, policy, opts...)
	f.reservations = NewReservationService(p, policy, opts...)
	return f
}

func (f *fixture) addBook(t *testing.T, copies int) *entities.Book {
	t.Helper()
	book, err := f.borrows.AddBook(context.Background(), "The Left Hand of Darkness", "Ursula K. Le Guin", "9780441478125", copies)
	require.NoError(t, err)
	return book
}

func (f *fixture) book(t *testing.T, id uint) *entities.Book {
	t.Helper()
	var book entities.Book
	require.NoError(t, f.db.Unscoped().First(&book, id).Error)
	return &book
}

// assertStock checks the counters and the total = available + borrowed invariant.
func (f *fixture) assertStock(t *testing.T, bookID uint, available, borrowed int) {
	t.Helper()
	book := f.book(t, bookID)
	assert.Equal(t, available, book.AvailableCopies, "available")
	assert.Equal(t, borrowed, book.BorrowedCopies, "borrowed")
	assert.Equal(t, book.TotalCopies, book.AvailableCopies+book.BorrowedCopies, "total")
	assert.GreaterOrEqual(t, book.AvailableCopies, 0)
	assert.GreaterOrEqual(t, book.BorrowedCopies, 0)
}

func (f *fixture) borrowRecord(t *testing.T, id uint) *entities.BorrowRecord {
	t.Helper()
	var record entities.BorrowRecord
	require.NoError(t, f.db.First(&record, id).Error)
	return &record
}

func (f *fixture) reservation(t *testing.T, id uint) *entities.ReservationRecord {
	t.Helper()
	var record entities.ReservationRecord
	require.NoError(t, f.db.First(&record, id).Error)
	return &record
}

// assertQueue checks that the book's pending queue holds exactly ids, numbered 1..N.
func (f *fixture) assertQueue(t *testing.T, bookID uint, ids ...uint) {
	t.Helper()
	queue, err := f.reservations.Queue(context.Background(), bookID)
	require.NoError(t, err)
	got := make([]uint, 0, len(queue))
	for i, record := range queue {
		assert.Equal(t, i+1, record.QueuePosition, "reservation %d", record.ID)
		got = append(got, record.ID)
	}
	if len(ids) == 0 {
		assert.Empty(t, got)
		return
	}
	assert.Equal(t, ids, got)
}

func (f *fixture) auditCount(t *testing.T, eventType entities.AuditEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&entities.AuditEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}
