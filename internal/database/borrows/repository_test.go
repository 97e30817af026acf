package borrows

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

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*gorm.DB, *Repository) {
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "borrows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB, NewRepository(db.DB)
}

func addRecord(t *testing.T, repo *Repository, userID, bookID uint, borrowed time.Time, status entities.BorrowStatus) *entities.BorrowRecord {
	record := &entities.BorrowRecord{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: borrowed,
		DueDate:    borrowed.Add(14 * 24 * time.Hour),
		Status:     status,
	}
	require.NoError(t, repo.Add(record))
	return record
}

func TestRepository_AddAndGet(t *testing.T) {
	_, repo := setupTestDB(t)
	record := addRecord(t, repo, 1, 2, baseTime, entities.BorrowStatusBorrowed)
	assert.NotZero(t, record.ID)

	found, err := repo.GetByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), found.UserID)
	assert.Equal(t, uint(2), found.BookID)
	assert.True(t, found.DueDate.Equal(record.DueDate))
	assert.Nil(t, found.ReturnDate)

	_, err = repo.GetByID(999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRepository_GetByIDForUpdate(t *testing.T) {
	db, repo := setupTestDB(t)
	record := addRecord(t, repo, 1, 2, baseTime, entities.BorrowStatusBorrowed)

	err := db.Transaction(func(tx *gorm.DB) error {
		found, err := NewRepository(tx).GetByIDForUpdate(record.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, record.ID, found.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_Update(t *testing.T) {
	_, repo := setupTestDB(t)
	record := addRecord(t, repo, 1, 2, baseTime, entities.BorrowStatusBorrowed)

	returned := baseTime.Add(24 * time.Hour)
	record.Status = entities.BorrowStatusReturned
	record.ReturnDate = &returned
	require.NoError(t, repo.Update(record))

	found, err := repo.GetByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowStatusReturned, found.Status)
	require.NotNil(t, found.ReturnDate)
	assert.True(t, found.ReturnDate.Equal(returned))

	assert.ErrorIs(t, repo.Update(&entities.BorrowRecord{ID: 999}), ErrRecordNotFound)
	assert.ErrorIs(t, repo.Update(&entities.BorrowRecord{}), ErrRecordNotFound)
}

func TestRepository_GetByUserAndBook(t *testing.T) {
	_, repo := setupTestDB(t)
	first := addRecord(t, repo, 1, 10, baseTime, entities.BorrowStatusReturned)
	second := addRecord(t, repo, 1, 11, baseTime.Add(time.Hour), entities.BorrowStatusBorrowed)
	addRecord(t, repo, 2, 10, baseTime.Add(2*time.Hour), entities.BorrowStatusBorrowed)

	records, total, err := repo.GetByUser(1, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)

	records, total, err = repo.GetByUser(1, entities.BorrowStatusBorrowed, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, second.ID, records[0].ID)

	records, total, err = repo.GetByBook(10, "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 1)
}

func TestRepository_Overdue(t *testing.T) {
	_, repo := setupTestDB(t)
	late := addRecord(t, repo, 1, 10, baseTime, entities.BorrowStatusBorrowed)
	addRecord(t, repo, 2, 10, baseTime, entities.BorrowStatusReturned)
	addRecord(t, repo, 3, 10, baseTime.Add(30*24*time.Hour), entities.BorrowStatusBorrowed)

	now := baseTime.Add(20 * 24 * time.Hour)

	records, total, err := repo.GetOverdue(now, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, late.ID, records[0].ID)

	scanned, err := repo.ScanOverdue(now)
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, late.ID, scanned[0].ID)

	ok, err := repo.MarkOverdue(late.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkOverdue(late.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	scanned, err = repo.ScanOverdue(now)
	require.NoError(t, err)
	assert.Empty(t, scanned)
}

func TestRepository_Counts(t *testing.T) {
	_, repo := setupTestDB(t)
	addRecord(t, repo, 1, 10, baseTime, entities.BorrowStatusBorrowed)
	addRecord(t, repo, 1, 11, baseTime, entities.BorrowStatusOverdue)
	addRecord(t, repo, 1, 12, baseTime, entities.BorrowStatusReturned)
	addRecord(t, repo, 2, 10, baseTime, entities.BorrowStatusBorrowed)

	current, err := repo.CountCurrentByUser(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"all", Filter{}, 4},
		{"by user", Filter{UserID: 1}, 3},
		{"by book", Filter{BookID: 10}, 2},
		{"by status", Filter{Status: entities.BorrowStatusBorrowed}, 2},
		{"combined", Filter{UserID: 1, Status: entities.BorrowStatusOverdue}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Count(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
