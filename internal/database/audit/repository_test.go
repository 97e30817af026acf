package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func TestRepository_LogEvent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	recordID := uint(7)
	event := &entities.AuditEvent{
		UserID:      1,
		BookID:      3,
		EventType:   entities.AuditEventBorrow,
		Action:      "borrow",
		Description: "User 1 borrowed book 3",
		EntityType:  "borrow_record",
		EntityID:    &recordID,
	}

	require.NoError(t, repo.LogEvent(event))
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.Equal(t, entities.AuditStatusSuccess, event.Status)

	found, err := repo.GetEventByID(event.ID)
	require.NoError(t, err)
	assert.Equal(t, "borrow", found.Action)
	require.NotNil(t, found.EntityID)
	assert.Equal(t, recordID, *found.EntityID)

	_, err = repo.GetEventByID(999)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRepository_GetEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now().UTC()

	events := []*entities.AuditEvent{
		{UserID: 1, BookID: 1, EventType: entities.AuditEventBorrow, CreatedAt: now.Add(-3 * time.Hour)},
		{UserID: 1, BookID: 1, EventType: entities.AuditEventReturn, CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: 2, BookID: 1, EventType: entities.AuditEventReserve, CreatedAt: now.Add(-time.Hour)},
		{UserID: 2, BookID: 2, EventType: entities.AuditEventBorrow, CreatedAt: now},
	}
	for _, e := range events {
		require.NoError(t, repo.LogEvent(e))
	}

	all, total, err := repo.GetEvents(Filter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, all, 2)
	assert.Equal(t, events[3].ID, all[0].ID)

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"by user", Filter{UserID: 1}, 2},
		{"by book", Filter{BookID: 1}, 3},
		{"by type", Filter{EventType: entities.AuditEventBorrow}, 2},
		{"since", Filter{Since: now.Add(-90 * time.Minute)}, 2},
		{"combined", Filter{UserID: 2, EventType: entities.AuditEventBorrow}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := repo.GetEvents(tt.filter, 1, 50)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestRepository_GetEventsForEntity(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	id := uint(5)
	other := uint(6)

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventReserve, EntityType: "reservation_record", EntityID: &id}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventReservationCancel, EntityType: "reservation_record", EntityID: &id}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventReserve, EntityType: "reservation_record", EntityID: &other}))

	events, err := repo.GetEventsForEntity("reservation_record", id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, entities.AuditEventReserve, events[0].EventType)
	assert.Equal(t, entities.AuditEventReservationCancel, events[1].EventType)
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now().UTC()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventBorrow, CreatedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventBorrow, CreatedAt: now.Add(-10 * 24 * time.Hour)}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{EventType: entities.AuditEventBorrow, CreatedAt: now}))

	deleted, err := repo.DeleteOldEvents(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.GetEvents(Filter{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
