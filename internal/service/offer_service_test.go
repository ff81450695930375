package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

type mockOfferEntryRepo struct {
	entries        map[string]*models.WaitlistEntry
	lastTransition *repository.TransitionParams
}

func (m *mockOfferEntryRepo) FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	if entry, ok := m.entries[id]; ok {
		copy := *entry
		return &copy, nil
	}
	return nil, repository.ErrEntryNotFound
}

func (m *mockOfferEntryRepo) Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error) {
	m.lastTransition = &params
	entry, ok := m.entries[params.EntryID]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	if !models.CanTransition(entry.Stage, params.To) {
		return nil, &repository.StageConflictError{Current: entry.Stage, Allowed: models.AllowedNext(entry.Stage)}
	}
	entry.Stage = params.To
	copy := *entry
	return &copy, nil
}

func (m *mockOfferEntryRepo) LockEntryTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.WaitlistEntry, error) {
	if entry, ok := m.entries[id]; ok {
		copy := *entry
		return &copy, nil
	}
	return nil, repository.ErrEntryNotFound
}

func (m *mockOfferEntryRepo) TransitionTx(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, params repository.TransitionParams) (*models.WaitlistEntry, error) {
	return m.Transition(ctx, params)
}

type mockApplicationWriter struct {
	created   *models.EnrollmentApplication
	guardian  *models.ApplicationGuardian
	createErr error
}

func (m *mockApplicationWriter) CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.EnrollmentApplication, guardian *models.ApplicationGuardian) error {
	if m.createErr != nil {
		return m.createErr
	}
	app.ID = "app-1"
	m.created = app
	m.guardian = guardian
	return nil
}

func newOfferTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func offeredEntry(expiresAt time.Time) *models.WaitlistEntry {
	start := date(2026, time.October, 1)
	return &models.WaitlistEntry{
		ID:               "entry-1",
		TenantID:         "tenant-1",
		Stage:            models.StageOffered,
		ChildFirstName:   "Mia",
		ChildLastName:    "Nguyen",
		ParentName:       "An Nguyen",
		ParentEmail:      "an@example.com",
		OfferedProgram:   "toddler",
		OfferedStartDate: &start,
		OfferExpiresAt:   &expiresAt,
	}
}

func TestOfferServiceMakeOfferDefaultExpiry(t *testing.T) {
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageTourCompleted},
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, nil, OfferServiceConfig{
		DefaultExpiry: 14 * 24 * time.Hour,
	}, nil, nil)

	start := date(2026, time.October, 1)
	entry, err := svc.MakeOffer(context.Background(), "entry-1", nil, MakeOfferRequest{
		Program:   "toddler",
		StartDate: &start,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StageOffered, entry.Stage)
	patch := entries.lastTransition.Patch
	require.NotNil(t, patch.OfferExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), *patch.OfferExpiresAt, time.Minute)
	require.NotNil(t, patch.OfferedProgram)
	assert.Equal(t, "toddler", *patch.OfferedProgram)
	require.NotNil(t, patch.OfferedStartDate)
	assert.Equal(t, start, *patch.OfferedStartDate)
}

func TestOfferServiceMakeOfferMissingStartDate(t *testing.T) {
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageTourCompleted},
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, nil, OfferServiceConfig{}, nil, nil)

	_, err := svc.MakeOffer(context.Background(), "entry-1", nil, MakeOfferRequest{Program: "toddler"})

	assertErrCode(t, err, appErrors.ErrValidation.Code)
	assert.Nil(t, entries.lastTransition, "an offer without a start date must never reach the repository")
}

func TestOfferServiceMakeOfferPastExpiry(t *testing.T) {
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageTourCompleted},
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, nil, OfferServiceConfig{}, nil, nil)

	start := date(2026, time.October, 1)
	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.MakeOffer(context.Background(), "entry-1", nil, MakeOfferRequest{
		Program:   "toddler",
		StartDate: &start,
		ExpiresAt: &past,
	})

	assertErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestOfferServiceMakeOfferFromInquiry(t *testing.T) {
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageInquiry},
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, nil, OfferServiceConfig{}, nil, nil)

	start := date(2026, time.October, 1)
	_, err := svc.MakeOffer(context.Background(), "entry-1", nil, MakeOfferRequest{
		Program:   "toddler",
		StartDate: &start,
	})

	assertErrCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestOfferServiceAcceptOffer(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC().Add(48 * time.Hour)),
	}}
	apps := &mockApplicationWriter{}
	svc := NewOfferService(entries, apps, db, OfferServiceConfig{}, nil, nil)

	actor := "user-1"
	result, err := svc.AcceptOffer(context.Background(), "entry-1", &actor, OfferResponseRequest{
		EnrollmentPeriodID: "2026-2027",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StageAccepted, result.Entry.Stage)
	assert.Equal(t, "app-1", result.Application.ID)
	assert.Equal(t, "entry-1", apps.created.EntryID)
	assert.Equal(t, "toddler", apps.created.RequestedProgram)
	assert.Equal(t, "2026-2027", apps.created.EnrollmentPeriodID)
	assert.Equal(t, "an@example.com", apps.guardian.Email)
	assert.Equal(t, "parent", apps.guardian.Relationship)
	patch := entries.lastTransition.Patch
	require.NotNil(t, patch.OfferResponse)
	assert.Equal(t, models.OfferResponseAccepted, *patch.OfferResponse)
	require.NotNil(t, patch.ConvertedApplicationID)
	assert.Equal(t, "app-1", *patch.ConvertedApplicationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceAcceptOfferExpired(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC().Add(-time.Hour)),
	}}
	apps := &mockApplicationWriter{}
	svc := NewOfferService(entries, apps, db, OfferServiceConfig{}, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), "entry-1", nil, OfferResponseRequest{})

	assertErrCode(t, err, appErrors.ErrOfferExpired.Code)
	assert.Nil(t, apps.created, "no application may be created for an expired offer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceAcceptOfferAtExpiryInstant(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	// Expiry marks the first invalid instant, not the last valid one.
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC()),
	}}
	apps := &mockApplicationWriter{}
	svc := NewOfferService(entries, apps, db, OfferServiceConfig{}, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), "entry-1", nil, OfferResponseRequest{})

	assertErrCode(t, err, appErrors.ErrOfferExpired.Code)
	assert.Nil(t, apps.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceAcceptOfferInvalidatesAnalytics(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()

	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC().Add(48 * time.Hour)),
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, db, OfferServiceConfig{}, nil, nil)
	cache := &mockPipelineInvalidator{}
	svc.SetAnalytics(cache)

	_, err := svc.AcceptOffer(context.Background(), "entry-1", nil, OfferResponseRequest{})

	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-1"}, cache.tenants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceAcceptOfferWrongStage(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageWaitlisted},
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, db, OfferServiceConfig{}, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), "entry-1", nil, OfferResponseRequest{})

	assertErrCode(t, err, appErrors.ErrInvalidTransition.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceAcceptOfferAlreadyConverted(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectRollback()

	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC().Add(48 * time.Hour)),
	}}
	apps := &mockApplicationWriter{createErr: repository.ErrApplicationExists}
	svc := NewOfferService(entries, apps, db, OfferServiceConfig{}, nil, nil)

	_, err := svc.AcceptOffer(context.Background(), "entry-1", nil, OfferResponseRequest{})

	assertErrCode(t, err, appErrors.ErrConflict.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferServiceDeclineOffer(t *testing.T) {
	entries := &mockOfferEntryRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": offeredEntry(time.Now().UTC().Add(48 * time.Hour)),
	}}
	svc := NewOfferService(entries, &mockApplicationWriter{}, nil, OfferServiceConfig{}, nil, nil)

	entry, err := svc.DeclineOffer(context.Background(), "entry-1", nil, OfferResponseRequest{Note: "chose another school"})

	require.NoError(t, err)
	assert.Equal(t, models.StageDeclined, entry.Stage)
	patch := entries.lastTransition.Patch
	require.NotNil(t, patch.OfferResponse)
	assert.Equal(t, models.OfferResponseDeclined, *patch.OfferResponse)
	require.NotNil(t, patch.OfferResponseAt)
}
