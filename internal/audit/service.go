package audit

import (
	"time"

	"github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
)

// Service reads and maintains the lending audit trail.
type Service struct {
	repo *audit.Repository
	now  func() time.Time
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(filter audit.Filter, page, pageSize int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(filter, page, pageSize)
}

// History returns the events of a single borrow or reservation record.
func (s *Service) History(entityType string, entityID uint) ([]entities.AuditEvent, error) {
	return s.repo.GetEventsForEntity(entityType, entityID)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}
