package lending

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/pool"
)

func TestBorrow_Success(t *testing.T) {
	f := setup(t, Policy{MaxBorrow: 3, BorrowPeriod: 14 * 24 * time.Hour})
	ctx := context.Background()
	book := f.addBook(t, 2)

	id, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	assert.NotZero(t, id)

	f.assertStock(t, book.ID, 1, 1)

	record := f.borrowRecord(t, id)
	assert.Equal(t, entities.BorrowStatusBorrowed, record.Status)
	assert.True(t, record.BorrowDate.Equal(baseTime))
	assert.True(t, record.DueDate.Equal(baseTime.Add(14*24*time.Hour)))
	assert.Nil(t, record.ReturnDate)

	assert.Equal(t, int64(1), f.auditCount(t, entities.AuditEventBorrow))
}

func TestBorrow_GuardFailures(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	inactive := f.addBook(t, 1)
	require.NoError(t, f.db.Model(&entities.Book{}).Where("id = ?", inactive.ID).Update("status", entities.BookStatusInactive).Error)

	empty := f.addBook(t, 1)
	_, err := f.borrows.Borrow(ctx, 9, empty.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		bookID uint
		want   *Error
	}{
		{"missing book", 4040, ErrBookNotFound},
		{"inactive book", inactive.ID, ErrBookInactive},
		{"no copies", empty.ID, ErrNoCopiesAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.borrows.Borrow(ctx, 1, tt.bookID)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsGuard(err))
		})
	}

	f.assertStock(t, inactive.ID, 1, 0)
	f.assertStock(t, empty.ID, 0, 1)
}

func TestBorrow_LimitReached(t *testing.T) {
	f := setup(t, Policy{MaxBorrow: 2})
	ctx := context.Background()
	book := f.addBook(t, 5)

	for i := 0; i < 2; i++ {
		_, err := f.borrows.Borrow(ctx, 1, book.ID)
		require.NoError(t, err)
	}

	_, err := f.borrows.Borrow(ctx, 1, book.ID)
	assert.ErrorIs(t, err, ErrBorrowLimitReached)
	assert.Equal(t, KindGuard, KindOf(err))
	f.assertStock(t, book.ID, 3, 2)

	_, err = f.borrows.Borrow(ctx, 2, book.ID)
	assert.NoError(t, err)
}

func TestBorrow_OverdueBlocksBorrowing(t *testing.T) {
	f := setup(t, Policy{MaxBorrow: 5, BorrowPeriod: 7 * 24 * time.Hour})
	ctx := context.Background()
	first := f.addBook(t, 1)
	second := f.addBook(t, 1)

	borrowID, err := f.borrows.Borrow(ctx, 1, first.ID)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	moved, err := f.borrows.ScanOverdueBorrows(ctx)
	require.NoError(t, err)
	require.Len(t, moved, 1)

	_, err = f.borrows.Borrow(ctx, 1, second.ID)
	assert.ErrorIs(t, err, ErrOverdueOutstanding)
	f.assertStock(t, second.ID, 1, 0)

	_, err = f.borrows.ReturnBook(ctx, borrowID)
	require.NoError(t, err)

	_, err = f.borrows.Borrow(ctx, 1, second.ID)
	assert.NoError(t, err)
}

func TestBorrow_ConcurrentBorrowersKeepCountersConsistent(t *testing.T) {
	f := setup(t, DefaultPolicy())
	book := f.addBook(t, 3)

	const borrowers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.borrows.Borrow(context.Background(), userID, book.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	}
	f.assertStock(t, book.ID, 0, 3)

	var records int64
	require.NoError(t, f.db.Model(&entities.BorrowRecord{}).Where("book_id = ?", book.ID).Count(&records).Error)
	assert.Equal(t, int64(3), records)
}

func TestBorrowAndReturn_ConcurrentCyclesNeverGoNegative(t *testing.T) {
	f := setup(t, DefaultPolicy())
	book := f.addBook(t, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				id, err := f.borrows.Borrow(context.Background(), userID, book.ID)
				if err != nil {
					assert.ErrorIs(t, err, ErrNoCopiesAvailable)
					continue
				}
				ok, err := f.borrows.ReturnBook(context.Background(), id)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	f.assertStock(t, book.ID, 2, 0)
}

func TestReturnBook(t *testing.T) {
	f := setup(t, Policy{BorrowPeriod: 10 * 24 * time.Hour})
	ctx := context.Background()
	book := f.addBook(t, 1)

	id, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	ok, err := f.borrows.ReturnBook(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	record := f.borrowRecord(t, id)
	assert.Equal(t, entities.BorrowStatusReturned, record.Status)
	require.NotNil(t, record.ReturnDate)
	assert.True(t, record.ReturnDate.Equal(baseTime.Add(24*time.Hour)))
	f.assertStock(t, book.ID, 1, 0)

	assert.Equal(t, []uint{book.ID}, f.trigger.Books())
	assert.Equal(t, int64(1), f.auditCount(t, entities.AuditEventReturn))

	ok, err = f.borrows.ReturnBook(ctx, id)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, IsGuard(err))
	f.assertStock(t, book.ID, 1, 0)

	_, err = f.borrows.ReturnBook(ctx, 9999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReturnBook_LateReturns(t *testing.T) {
	f := setup(t, Policy{BorrowPeriod: 24 * time.Hour})
	ctx := context.Background()
	book := f.addBook(t, 2)

	late, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	scanned, err := f.borrows.Borrow(ctx, 2, book.ID)
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)

	_, err = f.borrows.ScanOverdueBorrows(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusOverdue, f.borrowRecord(t, scanned).Status)

	_, err = f.borrows.ReturnBook(ctx, scanned)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusOverdueReturned, f.borrowRecord(t, scanned).Status)

	_, err = f.borrows.ReturnBook(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusOverdueReturned, f.borrowRecord(t, late).Status)

	f.assertStock(t, book.ID, 2, 0)
}

func TestReturnBook_TriggerFailureDoesNotFailReturn(t *testing.T) {
	f := setup(t, DefaultPolicy())
	f.trigger.err = errors.New("queue down")
	ctx := context.Background()
	book := f.addBook(t, 1)

	id, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)

	ok, err := f.borrows.ReturnBook(ctx, id)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestScanOverdueBorrows_Idempotent(t *testing.T) {
	f := setup(t, Policy{BorrowPeriod: 24 * time.Hour})
	ctx := context.Background()
	book := f.addBook(t, 3)

	first, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	second, err := f.borrows.Borrow(ctx, 2, book.ID)
	require.NoError(t, err)

	f.clock.Advance(12 * time.Hour)
	fresh, err := f.borrows.Borrow(ctx, 3, book.ID)
	require.NoError(t, err)

	f.clock.Advance(13 * time.Hour)

	moved, err := f.borrows.ScanOverdueBorrows(ctx)
	require.NoError(t, err)
	require.Len(t, moved, 2)
	assert.ElementsMatch(t, []uint{first, second}, []uint{moved[0].ID, moved[1].ID})
	for _, record := range moved {
		assert.Equal(t, entities.BorrowStatusOverdue, record.Status)
	}
	assert.Equal(t, entities.BorrowStatusBorrowed, f.borrowRecord(t, fresh).Status)
	assert.Len(t, f.notifier.overdue, 2)

	again, err := f.borrows.ScanOverdueBorrows(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, int64(2), f.auditCount(t, entities.AuditEventBorrowOverdue))
	assert.Len(t, f.notifier.overdue, 2)
}

func TestBorrow_PoolExhausted(t *testing.T) {
	f := setup(t, DefaultPolicy())
	book := f.addBook(t, 1)

	small, err := pool.New(f.db, pool.Config{Size: 1, AcquireTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer small.Close()

	held, err := small.Acquire(context.Background())
	require.NoError(t, err)
	defer small.Release(held)

	svc := NewBorrowService(small, DefaultPolicy())
	_, err = svc.Borrow(context.Background(), 1, book.ID)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
	assert.Equal(t, KindResource, KindOf(err))
	assert.True(t, IsRetryable(err))

	f.assertStock(t, book.ID, 1, 0)
}

func TestBorrowService_Reads(t *testing.T) {
	f := setup(t, Policy{BorrowPeriod: 24 * time.Hour})
	ctx := context.Background()
	book := f.addBook(t, 3)

	id, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	_, err = f.borrows.Borrow(ctx, 2, book.ID)
	require.NoError(t, err)

	record, err := f.borrows.GetBorrow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint(1), record.UserID)

	_, err = f.borrows.GetBorrow(ctx, 777)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	records, total, err := f.borrows.ListUserBorrows(ctx, 1, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)

	records, total, err = f.borrows.ListBookBorrows(ctx, book.ID, entities.BorrowStatusBorrowed, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)

	f.clock.Advance(48 * time.Hour)
	records, total, err = f.borrows.ListOverdue(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)
}

func TestAdjustStock(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	book := f.addBook(t, 1)

	_, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)

	err = f.borrows.AdjustStock(ctx, book.ID, 3, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidStock)
	f.assertStock(t, book.ID, 0, 1)
	assert.Empty(t, f.trigger.Books())

	require.NoError(t, f.borrows.AdjustStock(ctx, book.ID, 3, 2, 1))
	f.assertStock(t, book.ID, 2, 1)
	assert.Equal(t, []uint{book.ID}, f.trigger.Books())
	assert.Equal(t, int64(1), f.auditCount(t, entities.AuditEventStockAdjust))

	assert.ErrorIs(t, f.borrows.AdjustStock(ctx, 404, 1, 1, 0), ErrBookNotFound)
}

func TestCatalog(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	_, err := f.borrows.AddBook(ctx, "Bad", "Nobody", "", -1)
	assert.ErrorIs(t, err, ErrInvalidStock)

	book := f.addBook(t, 2)
	found, err := f.borrows.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.AvailableCopies)

	books, total, err := f.borrows.ListBooks(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, books, 1)
}

func TestSetBookStatus(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	book := f.addBook(t, 1)

	updated, err := f.borrows.SetBookStatus(ctx, book.ID, entities.BookStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, entities.BookStatusInactive, updated.Status)

	_, err = f.borrows.Borrow(ctx, 1, book.ID)
	assert.ErrorIs(t, err, ErrBookInactive)
	f.assertStock(t, book.ID, 1, 0)

	// setting the current status again writes nothing
	_, err = f.borrows.SetBookStatus(ctx, book.ID, entities.BookStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.auditCount(t, entities.AuditEventBookStatus))

	_, err = f.borrows.SetBookStatus(ctx, book.ID, entities.BookStatusActive)
	require.NoError(t, err)
	_, err = f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.auditCount(t, entities.AuditEventBookStatus))

	_, err = f.borrows.SetBookStatus(ctx, book.ID, entities.BookStatus("lost"))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.borrows.SetBookStatus(ctx, 404, entities.BookStatusActive)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestRemoveBook(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	book := f.addBook(t, 1)

	borrowID, err := f.borrows.Borrow(ctx, 1, book.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.borrows.RemoveBook(ctx, book.ID), ErrInvalidState, "copy on loan")

	_, err = f.borrows.ReturnBook(ctx, borrowID)
	require.NoError(t, err)

	reservationID, err := f.reservations.Reserve(ctx, 2, book.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.borrows.RemoveBook(ctx, book.ID), ErrInvalidState, "pending queue")

	_, err = f.reservations.CancelReservation(ctx, reservationID)
	require.NoError(t, err)

	require.NoError(t, f.borrows.RemoveBook(ctx, book.ID))
	assert.True(t, f.book(t, book.ID).DeletedAt.Valid)
	assert.Equal(t, int64(1), f.auditCount(t, entities.AuditEventBookRemove))

	_, err = f.borrows.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, f.borrows.RemoveBook(ctx, book.ID), ErrBookNotFound)

	_, err = f.borrows.Borrow(ctx, 3, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestSession_InvalidatesBrokenConnection(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	f.addBook(t, 1)

	before := f.pool.Stats().Replaced
	err := f.borrows.read(ctx, func(db *gorm.DB) error {
		return fmt.Errorf("read books: %w", driver.ErrBadConn)
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, before+1, f.pool.Stats().Replaced)

	_, _, err = f.borrows.ListBooks(ctx, 1, 10)
	require.NoError(t, err)
}
