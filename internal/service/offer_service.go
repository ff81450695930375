package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

type offerEntryRepository interface {
	FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error)
	LockEntryTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.WaitlistEntry, error)
	TransitionTx(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, params repository.TransitionParams) (*models.WaitlistEntry, error)
}

type applicationWriter interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.EnrollmentApplication, guardian *models.ApplicationGuardian) error
}

type offerTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// MakeOfferRequest extends an enrollment offer to a family.
type MakeOfferRequest struct {
	Program   string     `json:"program" validate:"required,max=100"`
	StartDate *time.Time `json:"start_date" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
	Note      string     `json:"note" validate:"max=500"`
}

// OfferResponseRequest resolves an offer on the family's behalf.
type OfferResponseRequest struct {
	EnrollmentPeriodID string `json:"enrollment_period_id"`
	Note               string `json:"note" validate:"max=500"`
}

// AcceptOfferResult bundles the updated entry with the application it produced.
type AcceptOfferResult struct {
	Entry       *models.WaitlistEntry         `json:"entry"`
	Application *models.EnrollmentApplication `json:"application"`
}

// OfferServiceConfig carries offer defaults from the application config.
type OfferServiceConfig struct {
	DefaultExpiry time.Duration
}

// OfferService owns the offer lifecycle: extending offers, resolving them,
// and converting accepted offers into enrollment applications.
type OfferService struct {
	entries      offerEntryRepository
	applications applicationWriter
	tx           offerTxProvider
	cfg          OfferServiceConfig
	analytics    pipelineInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewOfferService constructs OfferService.
func NewOfferService(entries offerEntryRepository, applications applicationWriter, tx offerTxProvider, cfg OfferServiceConfig, validate *validator.Validate, logger *zap.Logger) *OfferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 7 * 24 * time.Hour
	}
	return &OfferService{entries: entries, applications: applications, tx: tx, cfg: cfg, validator: validate, logger: logger}
}

// SetAnalytics wires the analytics cache so offer writes drop the cached
// pipeline report.
func (s *OfferService) SetAnalytics(analytics pipelineInvalidator) {
	s.analytics = analytics
}

func (s *OfferService) invalidateAnalytics(ctx context.Context, tenantID string) {
	if s.analytics != nil {
		s.analytics.Invalidate(ctx, tenantID)
	}
}

// MakeOffer moves an entry to the offered stage, recording the offered
// program, start date and expiry.
func (s *OfferService) MakeOffer(ctx context.Context, entryID string, actorID *string, req MakeOfferRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer payload")
	}

	now := time.Now().UTC()
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		t := now.Add(s.cfg.DefaultExpiry)
		expiresAt = &t
	} else if !expiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
	}

	entry, err := s.entries.Transition(ctx, repository.TransitionParams{
		EntryID: entryID,
		To:      models.StageOffered,
		ActorID: actorID,
		Note:    req.Note,
		Patch: repository.EntryPatch{
			OfferedProgram:   &req.Program,
			OfferedStartDate: req.StartDate,
			OfferExpiresAt:   expiresAt,
		},
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}

	s.invalidateAnalytics(ctx, entry.TenantID)
	s.logger.Info("offer extended",
		zap.String("entry_id", entryID),
		zap.String("program", req.Program),
		zap.Time("expires_at", *expiresAt))
	return entry, nil
}

// AcceptOffer resolves an offer as accepted and converts the entry into an
// enrollment application. The stage write and the application insert share one
// transaction: either both land or neither does.
func (s *OfferService) AcceptOffer(ctx context.Context, entryID string, actorID *string, req OfferResponseRequest) (result *AcceptOfferResult, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entry, err := s.entries.LockEntryTx(ctx, tx, entryID)
	if err != nil {
		return nil, mapTransitionError(err)
	}
	if entry.Stage != models.StageOffered {
		err = appErrors.Clone(appErrors.ErrInvalidTransition,
			(&repository.StageConflictError{Current: entry.Stage, Allowed: models.AllowedNext(entry.Stage)}).Error())
		return nil, err
	}
	now := time.Now().UTC()
	// The expiry instant itself is already too late.
	if entry.OfferExpiresAt != nil && !now.Before(*entry.OfferExpiresAt) {
		err = appErrors.Clone(appErrors.ErrOfferExpired, "")
		return nil, err
	}

	app := &models.EnrollmentApplication{
		EntryID:            entry.ID,
		TenantID:           entry.TenantID,
		EnrollmentPeriodID: req.EnrollmentPeriodID,
		ChildFirstName:     entry.ChildFirstName,
		ChildLastName:      entry.ChildLastName,
		ChildDOB:           entry.ChildDOB,
		RequestedProgram:   entry.OfferedProgram,
		RequestedStartDate: entry.OfferedStartDate,
	}
	guardian := &models.ApplicationGuardian{
		FullName:     entry.ParentName,
		Email:        entry.ParentEmail,
		Phone:        entry.ParentPhone,
		Relationship: "parent",
	}
	if err = s.applications.CreateTx(ctx, tx, app, guardian); err != nil {
		if errors.Is(err, repository.ErrApplicationExists) {
			err = appErrors.Clone(appErrors.ErrConflict, "entry was already converted to an application")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
		return nil, err
	}

	response := models.OfferResponseAccepted
	entry, err = s.entries.TransitionTx(ctx, tx, entry, repository.TransitionParams{
		EntryID: entry.ID,
		To:      models.StageAccepted,
		ActorID: actorID,
		Note:    req.Note,
		Patch: repository.EntryPatch{
			OfferResponse:          &response,
			OfferResponseAt:        &now,
			ConvertedApplicationID: &app.ID,
		},
	})
	if err != nil {
		err = mapTransitionError(err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit acceptance")
		return nil, err
	}

	s.invalidateAnalytics(ctx, entry.TenantID)
	s.logger.Info("offer accepted",
		zap.String("entry_id", entry.ID),
		zap.String("application_id", app.ID))
	return &AcceptOfferResult{Entry: entry, Application: app}, nil
}

// DeclineOffer resolves an offer as declined. Declined entries may later
// return to the waitlist.
func (s *OfferService) DeclineOffer(ctx context.Context, entryID string, actorID *string, req OfferResponseRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decline payload")
	}

	now := time.Now().UTC()
	response := models.OfferResponseDeclined
	entry, err := s.entries.Transition(ctx, repository.TransitionParams{
		EntryID: entryID,
		To:      models.StageDeclined,
		ActorID: actorID,
		Note:    req.Note,
		Patch: repository.EntryPatch{
			OfferResponse:   &response,
			OfferResponseAt: &now,
		},
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}

	s.invalidateAnalytics(ctx, entry.TenantID)
	s.logger.Info("offer declined", zap.String("entry_id", entryID))
	return entry, nil
}
