package pool

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := filepath.Join(t.TempDir(), "pool.db") + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func setupTestPool(t *testing.T, cfg Config) *Pool {
	p, err := New(setupTestDB(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNew_AppliesDefaults(t *testing.T) {
	p := setupTestPool(t, Config{})

	assert.Equal(t, DefaultSize, p.cfg.Size)
	assert.Equal(t, DefaultAcquireTimeout, p.cfg.AcquireTimeout)
	assert.Equal(t, DefaultHealthCheckTimeout, p.cfg.HealthCheckTimeout)
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestAcquireRelease(t *testing.T) {
	p := setupTestPool(t, Config{Size: 2})
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().InUse)

	require.NoError(t, s.DB.Create(&widget{Name: "a"}).Error)

	p.Release(s)
	stats := p.Stats()
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, int64(1), stats.Acquired)

	// releasing twice is a no-op
	p.Release(s)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestAcquire_ReusesIdleConnection(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})
	ctx := context.Background()

	s1, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn := s1.conn
	p.Release(s1)

	s2, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(s2)
	assert.Same(t, conn, s2.conn)
}

func TestAcquire_Exhausted(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(1), p.Stats().Timeouts)

	p.Release(held)

	s, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(s)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1, AcquireTimeout: time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), p.Stats().Timeouts)
}

func TestAcquire_CanceledContextWithFreeSlot(t *testing.T) {
	p := setupTestPool(t, Config{Size: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		_, err := p.Acquire(ctx)
		require.ErrorIs(t, err, context.Canceled)
	}
	stats := p.Stats()
	assert.Equal(t, int64(0), stats.Acquired)
	assert.Equal(t, 0, stats.InUse)
}

func TestAcquire_CloseWakesWaiters(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1, AcquireTimeout: 10 * time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errs <- err
	}()

	// Let the waiter block on the full pool.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released by Close")
	}
	assert.Equal(t, int64(0), p.Stats().Timeouts)

	p.Release(held)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestRelease_ReplacesBrokenConnection(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, s.conn.Close())

	p.Release(s)
	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Replaced)
	assert.Equal(t, 0, stats.Idle)

	s2, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(s2)
	assert.NoError(t, s2.DB.Create(&widget{Name: "after"}).Error)
}

func TestRelease_InvalidatedSessionIsClosed(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	s.Invalidate()
	p.Release(s)

	assert.Equal(t, int64(1), p.Stats().Replaced)
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestAcquire_ReplacesUnhealthyIdleConnection(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn := s.conn
	p.Release(s)
	require.Equal(t, 1, p.Stats().Idle)

	require.NoError(t, conn.Close())

	s2, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(s2)
	assert.NotSame(t, conn, s2.conn)
	assert.Equal(t, int64(1), p.Stats().Replaced)
}

func TestSession_Transaction(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})
	ctx := context.Background()
	boom := errors.New("boom")

	err := p.Do(ctx, func(s *Session) error {
		return s.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&widget{Name: "rolled back"}).Error; err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	err = p.Do(ctx, func(s *Session) error {
		return s.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&widget{Name: "committed"}).Error
		})
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, p.db.Model(&widget{}).Pluck("name", &names).Error)
	assert.Equal(t, []string{"committed"}, names)
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestSession_TransactionOnClosedConnection(t *testing.T) {
	p := setupTestPool(t, Config{Size: 1})

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.conn.Close())

	err = s.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&widget{Name: "x"}).Error
	})
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.True(t, s.broken.Load())

	p.Release(s)
	assert.Equal(t, int64(1), p.Stats().Replaced)
}

func TestClose(t *testing.T) {
	p := setupTestPool(t, Config{Size: 2})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)
	idle, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(idle)

	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Stats().Idle)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(held)
	assert.Equal(t, 0, p.Stats().Idle)
	assert.Equal(t, 0, p.Stats().InUse)

	assert.NoError(t, p.Close())
}

func TestDo_BoundsConcurrency(t *testing.T) {
	const size = 2
	p := setupTestPool(t, Config{Size: size, AcquireTimeout: 5 * time.Second})

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(s *Session) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(size))
	assert.Equal(t, int64(8), p.Stats().Acquired)
}
