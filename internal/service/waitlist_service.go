package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

type waitlistRepository interface {
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	HasOpenInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	FindByInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (*models.WaitlistEntry, error)
	List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, int, error)
	History(ctx context.Context, entryID string) ([]models.StageHistoryRecord, error)
	UpdateMetadata(ctx context.Context, id string, update repository.MetadataUpdate) error
	SoftDelete(ctx context.Context, id string) error
	Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error)
}

// SubmitInquiryRequest is the payload opening a new admissions journey.
type SubmitInquiryRequest struct {
	ChildFirstName     string     `json:"child_first_name" validate:"required,max=100"`
	ChildLastName      string     `json:"child_last_name" validate:"required,max=100"`
	ChildDOB           *time.Time `json:"child_dob"`
	RequestedProgram   string     `json:"requested_program" validate:"required,max=100"`
	RequestedStartDate *time.Time `json:"requested_start_date"`
	ParentName         string     `json:"parent_name" validate:"required,max=200"`
	ParentEmail        string     `json:"parent_email" validate:"required,email"`
	ParentPhone        string     `json:"parent_phone" validate:"max=30"`
	ReferralSource     string     `json:"referral_source" validate:"max=100"`
	Notes              string     `json:"notes" validate:"max=2000"`
}

// UpdateEntryRequest edits contact and preference fields without touching the stage.
type UpdateEntryRequest struct {
	Priority           *int       `json:"priority" validate:"omitempty,min=0,max=1000"`
	ChildFirstName     *string    `json:"child_first_name" validate:"omitempty,max=100"`
	ChildLastName      *string    `json:"child_last_name" validate:"omitempty,max=100"`
	ChildDOB           *time.Time `json:"child_dob"`
	RequestedProgram   *string    `json:"requested_program" validate:"omitempty,max=100"`
	RequestedStartDate *time.Time `json:"requested_start_date"`
	ParentName         *string    `json:"parent_name" validate:"omitempty,max=200"`
	ParentEmail        *string    `json:"parent_email" validate:"omitempty,email"`
	ParentPhone        *string    `json:"parent_phone" validate:"omitempty,max=30"`
	ReferralSource     *string    `json:"referral_source" validate:"omitempty,max=100"`
	Notes              *string    `json:"notes" validate:"omitempty,max=2000"`
}

// TransitionRequest moves an entry along one allowed edge of the stage graph.
type TransitionRequest struct {
	To   models.Stage `json:"to" validate:"required"`
	Note string       `json:"note" validate:"max=500"`
}

// InquiryStatusRequest identifies a journey for the public status check.
type InquiryStatusRequest struct {
	ParentEmail    string `form:"parent_email" json:"parent_email" validate:"required,email"`
	ChildFirstName string `form:"child_first_name" json:"child_first_name" validate:"required"`
	ChildLastName  string `form:"child_last_name" json:"child_last_name" validate:"required"`
}

// Stages reachable only through their dedicated workflow endpoints; the
// generic transition operation refuses them so side effects cannot be skipped.
var guardedStages = map[models.Stage]string{
	models.StageTourScheduled: "use the tour booking endpoint",
	models.StageOffered:       "use the offer endpoint",
	models.StageAccepted:      "use the offer accept endpoint",
	models.StageDeclined:      "use the offer decline endpoint",
}

// pipelineInvalidator drops cached analytics for a tenant after a stage
// write. Satisfied by AnalyticsService.
type pipelineInvalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// WaitlistService owns the waitlist entry lifecycle outside the tour and
// offer workflows.
type WaitlistService struct {
	repo      waitlistRepository
	analytics pipelineInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWaitlistService constructs WaitlistService.
func NewWaitlistService(repo waitlistRepository, validate *validator.Validate, logger *zap.Logger) *WaitlistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistService{repo: repo, validator: validate, logger: logger}
}

// SetAnalytics wires the analytics cache so stage writes drop the cached
// pipeline report.
func (s *WaitlistService) SetAnalytics(analytics pipelineInvalidator) {
	s.analytics = analytics
}

func (s *WaitlistService) invalidateAnalytics(ctx context.Context, tenantID string) {
	if s.analytics != nil {
		s.analytics.Invalidate(ctx, tenantID)
	}
}

// SubmitInquiry opens a new journey at the inquiry stage. A second open
// journey for the same child and parent email is rejected.
func (s *WaitlistService) SubmitInquiry(ctx context.Context, tenantID string, req SubmitInquiryRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid inquiry payload")
	}

	exists, err := s.repo.HasOpenInquiry(ctx, tenantID, req.ParentEmail, req.ChildFirstName, req.ChildLastName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing inquiries")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "")
	}

	entry := &models.WaitlistEntry{
		TenantID:           tenantID,
		ChildFirstName:     strings.TrimSpace(req.ChildFirstName),
		ChildLastName:      strings.TrimSpace(req.ChildLastName),
		ChildDOB:           req.ChildDOB,
		RequestedProgram:   req.RequestedProgram,
		RequestedStartDate: req.RequestedStartDate,
		ParentName:         strings.TrimSpace(req.ParentName),
		ParentEmail:        strings.ToLower(strings.TrimSpace(req.ParentEmail)),
		ParentPhone:        req.ParentPhone,
		ReferralSource:     req.ReferralSource,
		Notes:              req.Notes,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		// The partial unique index closes the race between the existence
		// check and the insert.
		if errors.Is(err, repository.ErrDuplicateInquiry) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create inquiry")
	}

	s.invalidateAnalytics(ctx, tenantID)
	s.logger.Info("inquiry submitted",
		zap.String("entry_id", entry.ID),
		zap.String("program", entry.RequestedProgram))
	return entry, nil
}

// List returns waitlist entries with pagination metadata.
func (s *WaitlistService) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, *models.Pagination, error) {
	if filter.Stage != "" && !models.IsValidStage(filter.Stage) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", filter.Stage))
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist entries")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an entry together with its ordered stage history.
func (s *WaitlistService) Get(ctx context.Context, id string) (*models.EntryWithHistory, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage history")
	}
	return &models.EntryWithHistory{Entry: *entry, History: history}, nil
}

// Update applies metadata edits to an entry.
func (s *WaitlistService) Update(ctx context.Context, id string, req UpdateEntryRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	update := repository.MetadataUpdate{
		Priority:           req.Priority,
		ChildFirstName:     req.ChildFirstName,
		ChildLastName:      req.ChildLastName,
		ChildDOB:           req.ChildDOB,
		RequestedProgram:   req.RequestedProgram,
		RequestedStartDate: req.RequestedStartDate,
		ParentName:         req.ParentName,
		ParentEmail:        req.ParentEmail,
		ParentPhone:        req.ParentPhone,
		ReferralSource:     req.ReferralSource,
		Notes:              req.Notes,
	}
	if err := s.repo.UpdateMetadata(ctx, id, update); err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update waitlist entry")
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload waitlist entry")
	}
	return entry, nil
}

// Transition moves an entry along one edge of the stage graph. Stages owned
// by the tour and offer workflows are rejected here.
func (s *WaitlistService) Transition(ctx context.Context, id string, actorID *string, req TransitionRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	if !models.IsValidStage(req.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", req.To))
	}
	if hint, guarded := guardedStages[req.To]; guarded {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %q cannot be set directly; %s", req.To, hint))
	}

	entry, err := s.repo.Transition(ctx, repository.TransitionParams{
		EntryID: id,
		To:      req.To,
		ActorID: actorID,
		Note:    req.Note,
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}

	s.invalidateAnalytics(ctx, entry.TenantID)
	s.logger.Info("stage transition",
		zap.String("entry_id", id),
		zap.String("to", string(req.To)))
	return entry, nil
}

// Withdraw exits a journey from any non-terminal stage.
func (s *WaitlistService) Withdraw(ctx context.Context, id string, actorID *string, note string) (*models.WaitlistEntry, error) {
	entry, err := s.repo.Transition(ctx, repository.TransitionParams{
		EntryID: id,
		To:      models.StageWithdrawn,
		ActorID: actorID,
		Note:    note,
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}
	s.invalidateAnalytics(ctx, entry.TenantID)
	return entry, nil
}

// Delete soft-deletes an entry. Deleted entries leave all views and reject
// further transitions.
func (s *WaitlistService) Delete(ctx context.Context, id string) error {
	// Loaded first so the tenant is known for cache invalidation; deleted
	// rows are invisible to FindByID.
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete waitlist entry")
	}
	s.invalidateAnalytics(ctx, entry.TenantID)
	return nil
}

// InquiryStatus returns the sanitized journey view for an unauthenticated family.
func (s *WaitlistService) InquiryStatus(ctx context.Context, tenantID string, req InquiryStatusRequest) (*models.InquiryStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status request")
	}
	entry, err := s.repo.FindByInquiry(ctx, tenantID, req.ParentEmail, req.ChildFirstName, req.ChildLastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no admissions journey found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inquiry status")
	}

	status := &models.InquiryStatus{
		Stage:          entry.Stage,
		ChildFirstName: entry.ChildFirstName,
		ChildLastName:  entry.ChildLastName,
		InquiryDate:    entry.InquiryDate,
		DaysWaiting:    int(time.Now().UTC().Sub(entry.InquiryDate).Hours() / 24),
	}
	if entry.Stage == models.StageTourScheduled {
		status.TourDate = entry.TourDate
	}
	if entry.Stage == models.StageOffered {
		status.OfferedProgram = entry.OfferedProgram
		status.OfferExpiresAt = entry.OfferExpiresAt
	}
	return status, nil
}

// ResolveEntryID maps the public journey key onto an entry identifier so the
// booking endpoint can act for an unauthenticated family.
func (s *WaitlistService) ResolveEntryID(ctx context.Context, tenantID string, req InquiryStatusRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid journey key")
	}
	entry, err := s.repo.FindByInquiry(ctx, tenantID, req.ParentEmail, req.ChildFirstName, req.ChildLastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no admissions journey found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve journey")
	}
	return entry.ID, nil
}

// mapTransitionError converts repository sentinels into the public taxonomy.
func mapTransitionError(err error) error {
	var conflict *repository.StageConflictError
	switch {
	case errors.As(err, &conflict):
		return appErrors.Clone(appErrors.ErrInvalidTransition, conflict.Error())
	case errors.Is(err, repository.ErrEntryNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
	case errors.Is(err, repository.ErrSlotNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "tour slot not found")
	case errors.Is(err, repository.ErrSlotInactive):
		return appErrors.Clone(appErrors.ErrSlotInactive, "")
	case errors.Is(err, repository.ErrSlotFull):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stage transition failed")
	}
}
