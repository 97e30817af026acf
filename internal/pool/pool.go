// Package pool hands out a bounded number of database sessions, each pinned
// to one dedicated connection.
//
// A session is acquired, used for one unit of work (usually a single
// transaction) and released. Connections are pinged on acquire and on
// release; a connection that fails the check is closed and replaced.
//
//	p, err := pool.New(db, pool.Config{Size: 10, AcquireTimeout: 2 * time.Second})
//	err = p.Do(ctx, func(s *pool.Session) error {
//		return s.Transaction(func(tx *gorm.DB) error { ... })
//	})
package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	// ErrPoolExhausted is returned when no session frees up within AcquireTimeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool closed")
	// ErrConnectionLost is returned when a healthy connection cannot be obtained
	// or a connection breaks in the middle of a unit of work.
	ErrConnectionLost = errors.New("database connection lost")
)

const (
	DefaultSize               = 10
	DefaultAcquireTimeout     = 2 * time.Second
	DefaultHealthCheckTimeout = time.Second
)

type Config struct {
	Size               int
	AcquireTimeout     time.Duration
	HealthCheckTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	return c
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Size     int   `json:"size"`
	InUse    int   `json:"in_use"`
	Idle     int   `json:"idle"`
	Acquired int64 `json:"acquired"`
	Timeouts int64 `json:"timeouts"`
	Replaced int64 `json:"replaced"`
}

type Pool struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   Config

	slots chan struct{}
	idle  chan *sql.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	inUse    atomic.Int64
	acquired atomic.Int64
	timeouts atomic.Int64
	replaced atomic.Int64
}

func New(db *gorm.DB, cfg Config) (*Pool, error) {
	if db == nil {
		return nil, errors.New("pool: nil database handle")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("pool: failed to get sql.DB: %w", err)
	}
	cfg = cfg.withDefaults()

	return &Pool{
		db:    db,
		sqlDB: sqlDB,
		cfg:   cfg,
		slots: make(chan struct{}, cfg.Size),
		idle:  make(chan *sql.Conn, cfg.Size),
		done:  make(chan struct{}),
	}, nil
}

// Acquire blocks until a session is free. It gives up with ErrPoolExhausted
// after AcquireTimeout, returns ctx.Err() if ctx ends first and ErrPoolClosed
// if the pool is closed while waiting.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	case <-timer.C:
		p.timeouts.Add(1)
		return nil, ErrPoolExhausted
	}

	if p.isClosed() {
		<-p.slots
		return nil, ErrPoolClosed
	}

	conn, err := p.healthyConn(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.inUse.Add(1)
	p.acquired.Add(1)

	return newSession(ctx, p, conn), nil
}

// Release returns the session's connection to the idle set, or closes it when
// the session is broken or fails its health check.
func (p *Pool) Release(s *Session) {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		p.inUse.Add(-1)
		<-p.slots
	}()

	if s.broken.Load() || !p.ping(s.conn) {
		p.discard(s.conn)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = s.conn.Close()
		return
	}
	select {
	case p.idle <- s.conn:
	default:
		_ = s.conn.Close()
	}
}

// Do acquires a session, runs fn and releases the session.
func (p *Pool) Do(ctx context.Context, fn func(s *Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)
	return fn(s)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:     p.cfg.Size,
		InUse:    int(p.inUse.Load()),
		Idle:     len(p.idle),
		Acquired: p.acquired.Load(),
		Timeouts: p.timeouts.Load(),
		Replaced: p.replaced.Load(),
	}
}

// Close closes idle connections. Sessions still in use are closed on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	var errs []error
	for {
		select {
		case conn := <-p.idle:
			if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// healthyConn takes an idle connection or opens a new one and pings it.
// A connection failing the ping is replaced once.
func (p *Pool) healthyConn(ctx context.Context) (*sql.Conn, error) {
	var conn *sql.Conn
	select {
	case conn = <-p.idle:
	default:
	}

	if conn != nil {
		if p.ping(conn) {
			return conn, nil
		}
		p.discard(conn)
	}

	conn, err := p.sqlDB.Conn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if !p.ping(conn) {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: new connection failed health check", ErrConnectionLost)
	}
	return conn, nil
}

func (p *Pool) ping(conn *sql.Conn) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HealthCheckTimeout)
	defer cancel()
	return conn.PingContext(ctx) == nil
}

func (p *Pool) discard(conn *sql.Conn) {
	_ = conn.Close()
	p.replaced.Add(1)
	log.Warn().Int64("replaced_total", p.replaced.Load()).Msg("Discarded unhealthy database connection")
}

// Session is a unit-of-work handle pinned to a single connection.
// It is not safe for concurrent use.
type Session struct {
	// DB runs every statement on the session's connection.
	DB *gorm.DB

	conn     *sql.Conn
	pool     *Pool
	broken   atomic.Bool
	released atomic.Bool
}

func newSession(ctx context.Context, p *Pool, conn *sql.Conn) *Session {
	db := p.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	db.Statement.ConnPool = conn
	return &Session{DB: db, conn: conn, pool: p}
}

// Transaction runs fn inside a transaction on the session's connection.
// A driver-level connection failure marks the session broken and is reported
// as ErrConnectionLost.
func (s *Session) Transaction(fn func(tx *gorm.DB) error) error {
	err := s.DB.Transaction(fn)
	if isConnectionError(err) {
		s.broken.Store(true)
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return err
}

// Invalidate marks the session so its connection is closed on release.
func (s *Session) Invalidate() {
	s.broken.Store(true)
}

func isConnectionError(err error) bool {
	return err != nil && (errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone))
}
