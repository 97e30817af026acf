// Package scheduler runs the periodic lending scans: marking overdue loans,
// expiring stale reservations and pruning the audit trail.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/entities"
	"github.com/mrlokans/lending/internal/retry"
)

type Job string

const (
	JobOverdue      Job = "overdue"
	JobExpired      Job = "expired"
	JobAuditCleanup Job = "audit_cleanup"
)

var (
	ErrUnknownJob  = errors.New("unknown scan job")
	ErrJobRunning  = errors.New("scan job already running")
	ErrJobDisabled = errors.New("scan job not configured")
)

// ParseJob accepts the job names used on the command line and in the API.
func ParseJob(name string) (Job, error) {
	switch Job(name) {
	case JobOverdue, JobExpired, JobAuditCleanup:
		return Job(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

type OverdueScanner interface {
	ScanOverdueBorrows(ctx context.Context) ([]entities.BorrowRecord, error)
}

type ExpiryScanner interface {
	ScanExpiredReservations(ctx context.Context) ([]entities.ReservationRecord, error)
}

// AuditCleanupFunc prunes old audit events and returns how many were removed,
// or -1 when the work was handed to the task queue.
type AuditCleanupFunc func(ctx context.Context) (int64, error)

// Schedules holds one cron expression per job. An empty expression leaves the
// job unscheduled; it can still be run with RunNow.
type Schedules struct {
	Overdue      string
	Expired      string
	AuditCleanup string
}

// ScanScheduler triggers the scans on their cron schedules. A job never
// overlaps with itself; different jobs may run concurrently.
type ScanScheduler struct {
	overdue      OverdueScanner
	expiry       ExpiryScanner
	auditCleanup AuditCleanupFunc
	schedules    Schedules

	cron       *cron.Cron
	entries    map[Job]cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	active     map[Job]bool
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func NewScanScheduler(overdue OverdueScanner, expiry ExpiryScanner, auditCleanup AuditCleanupFunc, schedules Schedules) *ScanScheduler {
	return &ScanScheduler{
		overdue:      overdue,
		expiry:       expiry,
		auditCleanup: auditCleanup,
		schedules:    schedules,
		cron:         cron.New(cron.WithParser(parser)),
		entries:      make(map[Job]cron.EntryID),
		active:       make(map[Job]bool),
		ctx:          context.Background(),
	}
}

func (s *ScanScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	jobs := map[Job]string{
		JobOverdue:      s.schedules.Overdue,
		JobExpired:      s.schedules.Expired,
		JobAuditCleanup: s.schedules.AuditCleanup,
	}
	for job, schedule := range jobs {
		if schedule == "" || !s.configured(job) {
			continue
		}
		if err := ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, job, err)
		}
		job := job
		entryID, err := s.cron.AddFunc(schedule, func() {
			if _, err := s.run(s.context(), job); err != nil && !errors.Is(err, ErrJobRunning) {
				log.Error().Err(err).Str("job", string(job)).Msg("scheduled scan failed")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job, err)
		}
		s.entries[job] = entryID
		log.Info().Str("job", string(job)).Str("schedule", schedule).Str("description", Describe(schedule)).
			Msg("scan scheduled")
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)
	s.ctx = cancelCtx

	s.cron.Start()
	s.isRunning = true
	log.Info().Int("jobs", len(s.entries)).Msg("scan scheduler started")

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the cron loop and waits for jobs in progress to finish.
func (s *ScanScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.mu.Lock()
	for job, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, job)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Info().Msg("scan scheduler stopped")
}

func (s *ScanScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsScanning reports whether job is in progress.
func (s *ScanScheduler) IsScanning(job Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[job]
}

// NextRun returns when job fires next, or nil if it is not scheduled.
func (s *ScanScheduler) NextRun(job Job) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	id, ok := s.entries[job]
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// RunNow runs job synchronously and returns how many records it touched.
func (s *ScanScheduler) RunNow(ctx context.Context, job Job) (int64, error) {
	if _, err := ParseJob(string(job)); err != nil {
		return 0, err
	}
	return s.run(ctx, job)
}

func (s *ScanScheduler) configured(job Job) bool {
	switch job {
	case JobOverdue:
		return s.overdue != nil
	case JobExpired:
		return s.expiry != nil
	case JobAuditCleanup:
		return s.auditCleanup != nil
	}
	return false
}

func (s *ScanScheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *ScanScheduler) run(ctx context.Context, job Job) (int64, error) {
	if !s.configured(job) {
		return 0, fmt.Errorf("%w: %s", ErrJobDisabled, job)
	}

	s.mu.Lock()
	if s.active[job] {
		s.mu.Unlock()
		log.Debug().Str("job", string(job)).Msg("scan skipped, previous run still in progress")
		return 0, ErrJobRunning
	}
	s.active[job] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, job)
		s.mu.Unlock()
	}()

	start := time.Now()
	var count int64
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.scan(ctx, job)
		return err
	}, retry.WithName(string(job)+"_scan"))
	if err != nil {
		return 0, err
	}

	log.Info().Str("job", string(job)).Int64("count", count).Dur("took", time.Since(start)).Msg("scan finished")
	return count, nil
}

func (s *ScanScheduler) scan(ctx context.Context, job Job) (int64, error) {
	switch job {
	case JobOverdue:
		records, err := s.overdue.ScanOverdueBorrows(ctx)
		return int64(len(records)), err
	case JobExpired:
		records, err := s.expiry.ScanExpiredReservations(ctx)
		return int64(len(records)), err
	case JobAuditCleanup:
		return s.auditCleanup(ctx)
	}
	return 0, ErrUnknownJob
}
