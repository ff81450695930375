package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

// pipelineStore is one stateful in-memory store shared by the waitlist, tour
// and offer services so a full admissions journey can be driven end to end.
// Stage writes append history under the mutex, mirroring the row-lock + same-
// transaction discipline of the real repository.
type pipelineStore struct {
	mu      sync.Mutex
	entries map[string]*models.WaitlistEntry
	history map[string][]models.StageHistoryRecord
	slot    *models.TourSlot
	booked  int
	apps    map[string]*models.EnrollmentApplication
}

func newPipelineStore() *pipelineStore {
	return &pipelineStore{
		entries: make(map[string]*models.WaitlistEntry),
		history: make(map[string][]models.StageHistoryRecord),
		apps:    make(map[string]*models.EnrollmentApplication),
	}
}

func (p *pipelineStore) appendHistory(entryID string, from *models.Stage, to models.Stage, note string) {
	records := p.history[entryID]
	p.history[entryID] = append(records, models.StageHistoryRecord{
		EntryID:   entryID,
		Seq:       len(records) + 1,
		FromStage: from,
		ToStage:   to,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
}

func (p *pipelineStore) transitionLocked(params repository.TransitionParams) (*models.WaitlistEntry, error) {
	entry, ok := p.entries[params.EntryID]
	if !ok {
		return nil, repository.ErrEntryNotFound
	}
	if !models.CanTransition(entry.Stage, params.To) {
		return nil, &repository.StageConflictError{Current: entry.Stage, Allowed: models.AllowedNext(entry.Stage)}
	}
	from := entry.Stage
	entry.Stage = params.To
	patch := params.Patch
	if patch.TourSlotID != nil {
		entry.TourSlotID = patch.TourSlotID
	}
	if patch.TourDate != nil {
		entry.TourDate = patch.TourDate
	}
	if patch.TourAttended != nil {
		entry.TourAttended = patch.TourAttended
	}
	if patch.TourNotes != nil {
		entry.TourNotes = *patch.TourNotes
	}
	if patch.OfferedProgram != nil {
		entry.OfferedProgram = *patch.OfferedProgram
	}
	if patch.OfferedStartDate != nil {
		entry.OfferedStartDate = patch.OfferedStartDate
	}
	if patch.OfferExpiresAt != nil {
		entry.OfferExpiresAt = patch.OfferExpiresAt
	}
	if patch.OfferResponse != nil {
		entry.OfferResponse = patch.OfferResponse
	}
	if patch.OfferResponseAt != nil {
		entry.OfferResponseAt = patch.OfferResponseAt
	}
	if patch.ConvertedApplicationID != nil {
		entry.ConvertedApplicationID = patch.ConvertedApplicationID
	}
	p.appendHistory(entry.ID, &from, params.To, params.Note)
	copy := *entry
	return &copy, nil
}

func (p *pipelineStore) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry.ID = "entry-1"
	entry.Stage = models.StageInquiry
	entry.InquiryDate = time.Now().UTC()
	copy := *entry
	p.entries[entry.ID] = &copy
	p.appendHistory(entry.ID, nil, models.StageInquiry, "inquiry submitted")
	return nil
}

func (p *pipelineStore) HasOpenInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (bool, error) {
	return false, nil
}

func (p *pipelineStore) FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[id]; ok {
		copy := *entry
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (p *pipelineStore) FindByInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (*models.WaitlistEntry, error) {
	return nil, sql.ErrNoRows
}

func (p *pipelineStore) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, int, error) {
	return nil, 0, nil
}

func (p *pipelineStore) History(ctx context.Context, entryID string) ([]models.StageHistoryRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.StageHistoryRecord(nil), p.history[entryID]...), nil
}

func (p *pipelineStore) UpdateMetadata(ctx context.Context, id string, update repository.MetadataUpdate) error {
	return nil
}

func (p *pipelineStore) SoftDelete(ctx context.Context, id string) error {
	return nil
}

func (p *pipelineStore) Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transitionLocked(params)
}

func (p *pipelineStore) BookTour(ctx context.Context, params repository.BookTourParams) (*models.WaitlistEntry, *models.TourSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot == nil || p.slot.ID != params.SlotID {
		return nil, nil, repository.ErrSlotNotFound
	}
	if !p.slot.Active {
		return nil, nil, repository.ErrSlotInactive
	}
	if p.booked >= p.slot.MaxFamilies {
		return nil, nil, repository.ErrSlotFull
	}
	startsAt := p.slot.StartsAt()
	entry, err := p.transitionLocked(repository.TransitionParams{
		EntryID: params.EntryID,
		To:      models.StageTourScheduled,
		ActorID: params.ActorID,
		Note:    "tour booked",
		Patch:   repository.EntryPatch{TourSlotID: &p.slot.ID, TourDate: &startsAt},
	})
	if err != nil {
		return nil, nil, err
	}
	p.booked++
	slotCopy := *p.slot
	return entry, &slotCopy, nil
}

func (p *pipelineStore) LockEntryTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.WaitlistEntry, error) {
	return p.FindByID(ctx, id)
}

func (p *pipelineStore) TransitionTx(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, params repository.TransitionParams) (*models.WaitlistEntry, error) {
	return p.Transition(ctx, params)
}

func (p *pipelineStore) CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.EnrollmentApplication, guardian *models.ApplicationGuardian) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.apps[app.EntryID]; ok {
		return repository.ErrApplicationExists
	}
	app.ID = "app-1"
	copy := *app
	p.apps[app.EntryID] = &copy
	return nil
}

// Walks one family through the whole pipeline: inquiry, waitlist, tour booking,
// attendance, offer, acceptance with conversion.
func TestAdmissionsPipelineEndToEnd(t *testing.T) {
	db, mock, cleanup := newOfferTxMock(t)
	defer cleanup()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	store := newPipelineStore()
	store.slot = &models.TourSlot{
		ID:          "slot-1",
		SlotDate:    time.Now().UTC().AddDate(0, 0, 7),
		StartTime:   "09:00",
		MaxFamilies: 4,
		Active:      true,
	}

	waitlistSvc := NewWaitlistService(store, nil, nil)
	tourSvc := NewTourService(&mockSlotRepo{}, store, TourServiceConfig{}, nil, nil)
	offerSvc := NewOfferService(store, store, db, OfferServiceConfig{DefaultExpiry: 7 * 24 * time.Hour}, nil, nil)

	ctx := context.Background()
	actor := "admissions-1"

	entry, err := waitlistSvc.SubmitInquiry(ctx, "tenant-1", validInquiry())
	require.NoError(t, err)
	require.Equal(t, models.StageInquiry, entry.Stage)

	entry, err = waitlistSvc.Transition(ctx, entry.ID, &actor, TransitionRequest{
		To:   models.StageWaitlisted,
		Note: "reviewed",
	})
	require.NoError(t, err)
	require.Equal(t, models.StageWaitlisted, entry.Stage)

	entry, _, err = tourSvc.BookTour(ctx, &actor, BookTourRequest{EntryID: entry.ID, SlotID: "slot-1"})
	require.NoError(t, err)
	require.Equal(t, models.StageTourScheduled, entry.Stage)
	require.NotNil(t, entry.TourDate)

	entry, err = tourSvc.RecordAttendance(ctx, entry.ID, &actor, AttendanceRequest{Attended: true})
	require.NoError(t, err)
	require.Equal(t, models.StageTourCompleted, entry.Stage)

	offerStart := date(2026, time.October, 1)
	entry, err = offerSvc.MakeOffer(ctx, entry.ID, &actor, MakeOfferRequest{Program: "toddler", StartDate: &offerStart})
	require.NoError(t, err)
	require.Equal(t, models.StageOffered, entry.Stage)

	result, err := offerSvc.AcceptOffer(ctx, entry.ID, &actor, OfferResponseRequest{EnrollmentPeriodID: "2026-2027"})
	require.NoError(t, err)
	assert.Equal(t, models.StageAccepted, result.Entry.Stage)
	assert.Equal(t, "app-1", result.Application.ID)
	require.NotNil(t, result.Entry.ConvertedApplicationID)
	assert.Equal(t, "app-1", *result.Entry.ConvertedApplicationID)

	// A second acceptance finds the entry past the offered stage.
	_, err = offerSvc.AcceptOffer(ctx, entry.ID, &actor, OfferResponseRequest{})
	assertErrCode(t, err, appErrors.ErrInvalidTransition.Code)

	history, err := store.History(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	wantStages := []models.Stage{
		models.StageInquiry,
		models.StageWaitlisted,
		models.StageTourScheduled,
		models.StageTourCompleted,
		models.StageOffered,
		models.StageAccepted,
	}
	for i, record := range history {
		assert.Equal(t, i+1, record.Seq)
		assert.Equal(t, wantStages[i], record.ToStage)
		if i == 0 {
			assert.Nil(t, record.FromStage)
		} else {
			require.NotNil(t, record.FromStage)
			assert.Equal(t, wantStages[i-1], *record.FromStage)
		}
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
