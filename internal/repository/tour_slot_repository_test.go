package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleoaks/admissions-api/internal/models"
)

func newTourSlotRepoMock(t *testing.T) (*TourSlotRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewTourSlotRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func slotWithBookingsRows(id string, maxFamilies, booked int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "slot_date", "start_time", "end_time", "max_families",
		"guide_name", "location", "active", "deleted_at", "created_at", "updated_at", "booked_count",
	}).AddRow(id, "tenant-1", now.AddDate(0, 0, 7), "09:00", "10:00", maxFamilies,
		"Dana", "Front office", true, nil, now, now, booked)
}

func TestTourSlotRepositoryCreate(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO tour_slots").
		WillReturnResult(sqlmock.NewResult(0, 1))

	slot := &models.TourSlot{
		TenantID:    "tenant-1",
		SlotDate:    time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC),
		StartTime:   "09:00",
		EndTime:     "10:00",
		MaxFamilies: 4,
		Active:      true,
	}
	err := repo.Create(context.Background(), slot)

	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryBulkCreate(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tour_slots").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tour_slots").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	slots := []*models.TourSlot{
		{TenantID: "tenant-1", StartTime: "09:00", EndTime: "10:00", MaxFamilies: 4, Active: true},
		{TenantID: "tenant-1", StartTime: "09:00", EndTime: "10:00", MaxFamilies: 4, Active: true},
	}
	err := repo.BulkCreate(context.Background(), slots)

	require.NoError(t, err)
	for _, slot := range slots {
		assert.NotEmpty(t, slot.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryListWithBookings(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	// The list query binds the seat-holding array for its join; the count
	// query has no join and must carry only the filter values.
	mock.ExpectQuery("LEFT JOIN waitlist_entries w").
		WithArgs(sqlmock.AnyArg(), "tenant-1").
		WillReturnRows(slotWithBookingsRows("slot-1", 4, 3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tour_slots s`).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	slots, total, err := repo.ListWithBookings(context.Background(), models.TourSlotFilter{TenantID: "tenant-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, slots, 1)
	assert.Equal(t, 3, slots[0].BookedCount)
	assert.Equal(t, 1, slots[0].SpotsRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryListWithBookingsOverbookedClampsToZero(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("LEFT JOIN waitlist_entries w").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(slotWithBookingsRows("slot-1", 2, 3))
	// Unfiltered, the count statement takes no parameters at all.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tour_slots s`).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	slots, _, err := repo.ListWithBookings(context.Background(), models.TourSlotFilter{})

	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 0, slots[0].SpotsRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryListAvailable(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("LEFT JOIN waitlist_entries w").
		WithArgs(sqlmock.AnyArg(), "tenant-1", sqlmock.AnyArg()).
		WillReturnRows(slotWithBookingsRows("slot-1", 4, 1))

	slots, err := repo.ListAvailable(context.Background(), "tenant-1", time.Now().UTC())

	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 3, slots[0].SpotsRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryUpdateNotFound(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tour_slots SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	active := false
	err := repo.Update(context.Background(), "missing", SlotUpdate{Active: &active})

	assert.ErrorIs(t, err, ErrSlotNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryUpdateNoFields(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	err := repo.Update(context.Background(), "slot-1", SlotUpdate{})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositoryCountBookings(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM waitlist_entries`).
		WithArgs("slot-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountBookings(context.Background(), "slot-1")

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTourSlotRepositorySoftDelete(t *testing.T) {
	repo, mock, cleanup := newTourSlotRepoMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tour_slots SET deleted_at").
		WithArgs("slot-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SoftDelete(context.Background(), "slot-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
