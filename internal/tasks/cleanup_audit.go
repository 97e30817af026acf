package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
)

const defaultAuditRetentionDays = 90

// AuditEventCleaner deletes audit events older than a retention window.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask prunes the lending audit trail.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupAuditEventsProcessor runs a CleanupAuditEventsTask against cleaner.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit event cleaner not configured")
		}
		_, err := CleanupAuditEvents(cleaner, task.RetentionDays)
		return err
	}
}

// CleanupAuditEvents deletes events older than retentionDays, falling back to
// 90 days for non-positive values.
func CleanupAuditEvents(cleaner AuditEventCleaner, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = defaultAuditRetentionDays
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	deleted, err := cleaner.DeleteOldEvents(retention)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit events: %w", err)
	}

	log.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("cleaned up audit events")
	return deleted, nil
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
