package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

type mockWaitlistRepo struct {
	entries        map[string]*models.WaitlistEntry
	history        map[string][]models.StageHistoryRecord
	hasOpen        bool
	hasOpenErr     error
	createErr      error
	transitionErr  error
	lastTransition *repository.TransitionParams
}

func (m *mockWaitlistRepo) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.entries == nil {
		m.entries = make(map[string]*models.WaitlistEntry)
	}
	entry.ID = "entry-1"
	entry.Stage = models.StageInquiry
	entry.InquiryDate = time.Now().UTC()
	copy := *entry
	m.entries[entry.ID] = &copy
	return nil
}

func (m *mockWaitlistRepo) HasOpenInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (bool, error) {
	return m.hasOpen, m.hasOpenErr
}

func (m *mockWaitlistRepo) FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	if entry, ok := m.entries[id]; ok {
		copy := *entry
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWaitlistRepo) FindByInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (*models.WaitlistEntry, error) {
	for _, entry := range m.entries {
		if entry.ParentEmail == parentEmail {
			copy := *entry
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockWaitlistRepo) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, int, error) {
	var out []models.WaitlistEntry
	for _, entry := range m.entries {
		out = append(out, *entry)
	}
	return out, len(out), nil
}

func (m *mockWaitlistRepo) History(ctx context.Context, entryID string) ([]models.StageHistoryRecord, error) {
	return m.history[entryID], nil
}

func (m *mockWaitlistRepo) UpdateMetadata(ctx context.Context, id string, update repository.MetadataUpdate) error {
	if _, ok := m.entries[id]; !ok {
		return repository.ErrEntryNotFound
	}
	return nil
}

func (m *mockWaitlistRepo) SoftDelete(ctx context.Context, id string) error {
	if _, ok := m.entries[id]; !ok {
		return repository.ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *mockWaitlistRepo) Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error) {
	m.lastTransition = &params
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
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

type mockPipelineInvalidator struct {
	tenants []string
}

func (m *mockPipelineInvalidator) Invalidate(ctx context.Context, tenantID string) {
	m.tenants = append(m.tenants, tenantID)
}

func assertErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, code, appErr.Code)
}

func validInquiry() SubmitInquiryRequest {
	return SubmitInquiryRequest{
		ChildFirstName:   "Mia",
		ChildLastName:    "Nguyen",
		RequestedProgram: "toddler",
		ParentName:       "An Nguyen",
		ParentEmail:      "  An@Example.COM ",
	}
}

func TestWaitlistServiceSubmitInquiry(t *testing.T) {
	repo := &mockWaitlistRepo{}
	svc := NewWaitlistService(repo, nil, nil)

	entry, err := svc.SubmitInquiry(context.Background(), "tenant-1", validInquiry())

	require.NoError(t, err)
	assert.Equal(t, models.StageInquiry, entry.Stage)
	assert.Equal(t, "an@example.com", entry.ParentEmail)
	assert.Equal(t, "Mia", entry.ChildFirstName)
}

func TestWaitlistServiceSubmitInquiryDuplicate(t *testing.T) {
	repo := &mockWaitlistRepo{hasOpen: true}
	svc := NewWaitlistService(repo, nil, nil)

	_, err := svc.SubmitInquiry(context.Background(), "tenant-1", validInquiry())

	assertErrCode(t, err, appErrors.ErrAlreadyExists.Code)
}

func TestWaitlistServiceSubmitInquiryDuplicateRace(t *testing.T) {
	// The existence check passed but the insert lost the race to the
	// partial unique index.
	repo := &mockWaitlistRepo{createErr: repository.ErrDuplicateInquiry}
	svc := NewWaitlistService(repo, nil, nil)

	_, err := svc.SubmitInquiry(context.Background(), "tenant-1", validInquiry())

	assertErrCode(t, err, appErrors.ErrAlreadyExists.Code)
}

func TestWaitlistServiceSubmitInquiryValidation(t *testing.T) {
	svc := NewWaitlistService(&mockWaitlistRepo{}, nil, nil)

	req := validInquiry()
	req.ParentEmail = "not-an-email"
	_, err := svc.SubmitInquiry(context.Background(), "tenant-1", req)

	assertErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestWaitlistServiceTransition(t *testing.T) {
	actor := "user-1"
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageInquiry},
	}}
	svc := NewWaitlistService(repo, nil, nil)

	entry, err := svc.Transition(context.Background(), "entry-1", &actor, TransitionRequest{
		To:   models.StageWaitlisted,
		Note: "application reviewed",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StageWaitlisted, entry.Stage)
	require.NotNil(t, repo.lastTransition.ActorID)
	assert.Equal(t, "user-1", *repo.lastTransition.ActorID)
	assert.Equal(t, "application reviewed", repo.lastTransition.Note)
}

func TestWaitlistServiceTransitionGuardedStages(t *testing.T) {
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageWaitlisted},
	}}
	svc := NewWaitlistService(repo, nil, nil)

	for _, to := range []models.Stage{
		models.StageTourScheduled,
		models.StageOffered,
		models.StageAccepted,
		models.StageDeclined,
	} {
		_, err := svc.Transition(context.Background(), "entry-1", nil, TransitionRequest{To: to})
		assertErrCode(t, err, appErrors.ErrValidation.Code)
	}
	assert.Nil(t, repo.lastTransition, "guarded stages must never reach the repository")
}

func TestWaitlistServiceTransitionUnknownStage(t *testing.T) {
	svc := NewWaitlistService(&mockWaitlistRepo{}, nil, nil)

	_, err := svc.Transition(context.Background(), "entry-1", nil, TransitionRequest{To: models.Stage("archived")})

	assertErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestWaitlistServiceTransitionInvalidEdge(t *testing.T) {
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageEnrolled},
	}}
	svc := NewWaitlistService(repo, nil, nil)

	_, err := svc.Transition(context.Background(), "entry-1", nil, TransitionRequest{To: models.StageWaitlisted})

	assertErrCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestWaitlistServiceTransitionNotFound(t *testing.T) {
	svc := NewWaitlistService(&mockWaitlistRepo{}, nil, nil)

	_, err := svc.Transition(context.Background(), "missing", nil, TransitionRequest{To: models.StageWaitlisted})

	assertErrCode(t, err, appErrors.ErrNotFound.Code)
}

func TestWaitlistServiceWithdraw(t *testing.T) {
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", Stage: models.StageOffered},
	}}
	svc := NewWaitlistService(repo, nil, nil)

	entry, err := svc.Withdraw(context.Background(), "entry-1", nil, "family relocated")

	require.NoError(t, err)
	assert.Equal(t, models.StageWithdrawn, entry.Stage)
}

func TestWaitlistServiceStageWritesInvalidateAnalytics(t *testing.T) {
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", TenantID: "tenant-1", Stage: models.StageInquiry},
	}}
	svc := NewWaitlistService(repo, nil, nil)
	cache := &mockPipelineInvalidator{}
	svc.SetAnalytics(cache)

	_, err := svc.Transition(context.Background(), "entry-1", nil, TransitionRequest{To: models.StageWaitlisted})
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), "entry-1", nil, "family relocated")
	require.NoError(t, err)

	assert.Equal(t, []string{"tenant-1", "tenant-1"}, cache.tenants,
		"every successful stage write drops the cached pipeline report")
}

func TestWaitlistServiceFailedTransitionKeepsAnalyticsCache(t *testing.T) {
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {ID: "entry-1", TenantID: "tenant-1", Stage: models.StageEnrolled},
	}}
	svc := NewWaitlistService(repo, nil, nil)
	cache := &mockPipelineInvalidator{}
	svc.SetAnalytics(cache)

	_, err := svc.Transition(context.Background(), "entry-1", nil, TransitionRequest{To: models.StageWaitlisted})

	assertErrCode(t, err, appErrors.ErrInvalidTransition.Code)
	assert.Empty(t, cache.tenants)
}

func TestWaitlistServiceGetWithHistory(t *testing.T) {
	repo := &mockWaitlistRepo{
		entries: map[string]*models.WaitlistEntry{
			"entry-1": {ID: "entry-1", Stage: models.StageWaitlisted},
		},
		history: map[string][]models.StageHistoryRecord{
			"entry-1": {
				{EntryID: "entry-1", Seq: 1, ToStage: models.StageInquiry},
				{EntryID: "entry-1", Seq: 2, ToStage: models.StageWaitlisted},
			},
		},
	}
	svc := NewWaitlistService(repo, nil, nil)

	out, err := svc.Get(context.Background(), "entry-1")

	require.NoError(t, err)
	assert.Equal(t, models.StageWaitlisted, out.Entry.Stage)
	require.Len(t, out.History, 2)
	assert.Equal(t, 1, out.History[0].Seq)
}

func TestWaitlistServiceDeleteNotFound(t *testing.T) {
	svc := NewWaitlistService(&mockWaitlistRepo{}, nil, nil)

	err := svc.Delete(context.Background(), "missing")

	assertErrCode(t, err, appErrors.ErrNotFound.Code)
}

func TestWaitlistServiceInquiryStatus(t *testing.T) {
	expires := time.Now().UTC().Add(72 * time.Hour)
	repo := &mockWaitlistRepo{entries: map[string]*models.WaitlistEntry{
		"entry-1": {
			ID:             "entry-1",
			Stage:          models.StageOffered,
			ChildFirstName: "Mia",
			ChildLastName:  "Nguyen",
			ParentEmail:    "an@example.com",
			OfferedProgram: "toddler",
			OfferExpiresAt: &expires,
			InquiryDate:    time.Now().UTC().AddDate(0, 0, -10),
		},
	}}
	svc := NewWaitlistService(repo, nil, nil)

	status, err := svc.InquiryStatus(context.Background(), "tenant-1", InquiryStatusRequest{
		ParentEmail:    "an@example.com",
		ChildFirstName: "Mia",
		ChildLastName:  "Nguyen",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StageOffered, status.Stage)
	assert.Equal(t, "toddler", status.OfferedProgram)
	require.NotNil(t, status.OfferExpiresAt)
	assert.Equal(t, 10, status.DaysWaiting)
	assert.Nil(t, status.TourDate, "tour details are only exposed while a tour is scheduled")
}

func TestWaitlistServiceInquiryStatusNotFound(t *testing.T) {
	svc := NewWaitlistService(&mockWaitlistRepo{}, nil, nil)

	_, err := svc.InquiryStatus(context.Background(), "tenant-1", InquiryStatusRequest{
		ParentEmail:    "nobody@example.com",
		ChildFirstName: "No",
		ChildLastName:  "Body",
	})

	assertErrCode(t, err, appErrors.ErrNotFound.Code)
}
