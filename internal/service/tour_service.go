package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/repository"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

type tourSlotRepository interface {
	Create(ctx context.Context, slot *models.TourSlot) error
	BulkCreate(ctx context.Context, slots []*models.TourSlot) error
	FindByID(ctx context.Context, id string) (*models.TourSlot, error)
	ListWithBookings(ctx context.Context, filter models.TourSlotFilter) ([]models.TourSlotWithBookings, int, error)
	ListAvailable(ctx context.Context, tenantID string, from time.Time) ([]models.TourSlotWithBookings, error)
	Update(ctx context.Context, id string, update repository.SlotUpdate) error
	CountBookings(ctx context.Context, slotID string) (int, error)
	SoftDelete(ctx context.Context, id string) error
}

type tourBookingRepository interface {
	BookTour(ctx context.Context, params repository.BookTourParams) (*models.WaitlistEntry, *models.TourSlot, error)
	Transition(ctx context.Context, params repository.TransitionParams) (*models.WaitlistEntry, error)
	FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
}

// CreateSlotRequest describes a single new tour window.
type CreateSlotRequest struct {
	SlotDate    time.Time `json:"slot_date" validate:"required"`
	StartTime   string    `json:"start_time" validate:"required"`
	EndTime     string    `json:"end_time" validate:"required"`
	MaxFamilies int       `json:"max_families" validate:"omitempty,min=1,max=100"`
	GuideName   string    `json:"guide_name" validate:"max=200"`
	Location    string    `json:"location" validate:"max=200"`
}

// BulkCreateSlotsRequest expands a weekly pattern into individual slots.
type BulkCreateSlotsRequest struct {
	Weekday     time.Weekday `json:"weekday" validate:"min=0,max=6"`
	StartTime   string       `json:"start_time" validate:"required"`
	EndTime     string       `json:"end_time" validate:"required"`
	DateFrom    time.Time    `json:"date_from" validate:"required"`
	DateTo      time.Time    `json:"date_to" validate:"required"`
	MaxFamilies int          `json:"max_families" validate:"omitempty,min=1,max=100"`
	GuideName   string       `json:"guide_name" validate:"max=200"`
	Location    string       `json:"location" validate:"max=200"`
}

// UpdateSlotRequest edits slot fields. Deactivating never touches existing bookings.
type UpdateSlotRequest struct {
	SlotDate    *time.Time `json:"slot_date"`
	StartTime   *string    `json:"start_time"`
	EndTime     *string    `json:"end_time"`
	MaxFamilies *int       `json:"max_families" validate:"omitempty,min=1,max=100"`
	GuideName   *string    `json:"guide_name" validate:"omitempty,max=200"`
	Location    *string    `json:"location" validate:"omitempty,max=200"`
	Active      *bool      `json:"active"`
}

// BookTourRequest books an entry onto a slot.
type BookTourRequest struct {
	EntryID string `json:"entry_id" validate:"required"`
	SlotID  string `json:"slot_id" validate:"required"`
}

// AttendanceRequest records the outcome of a scheduled tour.
type AttendanceRequest struct {
	Attended bool   `json:"attended"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// TourServiceConfig carries tour-related limits from the application config.
type TourServiceConfig struct {
	DefaultCapacity    int
	BulkCreateMaxSlots int
}

// TourService manages tour slots and the booking and attendance workflows.
type TourService struct {
	slots     tourSlotRepository
	entries   tourBookingRepository
	cfg       TourServiceConfig
	analytics pipelineInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTourService constructs TourService.
func NewTourService(slots tourSlotRepository, entries tourBookingRepository, cfg TourServiceConfig, validate *validator.Validate, logger *zap.Logger) *TourService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 4
	}
	if cfg.BulkCreateMaxSlots <= 0 {
		cfg.BulkCreateMaxSlots = 26
	}
	return &TourService{slots: slots, entries: entries, cfg: cfg, validator: validate, logger: logger}
}

// SetAnalytics wires the analytics cache so booking and attendance writes
// drop the cached pipeline report.
func (s *TourService) SetAnalytics(analytics pipelineInvalidator) {
	s.analytics = analytics
}

func (s *TourService) invalidateAnalytics(ctx context.Context, tenantID string) {
	if s.analytics != nil {
		s.analytics.Invalidate(ctx, tenantID)
	}
}

func validateTimeOfDay(value string) error {
	_, err := time.Parse("15:04", value)
	return err
}

// CreateSlot creates one bookable tour window.
func (s *TourService) CreateSlot(ctx context.Context, tenantID string, req CreateSlotRequest) (*models.TourSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if err := validateTimeOfDay(req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	if err := validateTimeOfDay(req.EndTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	capacity := req.MaxFamilies
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}
	slot := &models.TourSlot{
		TenantID:    tenantID,
		SlotDate:    req.SlotDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxFamilies: capacity,
		GuideName:   req.GuideName,
		Location:    req.Location,
		Active:      true,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tour slot")
	}
	return slot, nil
}

// BulkCreateSlots expands a weekly pattern over a date range into slots, one
// per matching weekday, capped by the configured maximum.
func (s *TourService) BulkCreateSlots(ctx context.Context, tenantID string, req BulkCreateSlotsRequest) ([]*models.TourSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk slot payload")
	}
	if err := validateTimeOfDay(req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	if err := validateTimeOfDay(req.EndTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if req.DateTo.Before(req.DateFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not precede date_from")
	}

	capacity := req.MaxFamilies
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}

	var slots []*models.TourSlot
	for d := req.DateFrom; !d.After(req.DateTo); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != req.Weekday {
			continue
		}
		if len(slots) >= s.cfg.BulkCreateMaxSlots {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("range expands to more than %d slots", s.cfg.BulkCreateMaxSlots))
		}
		slots = append(slots, &models.TourSlot{
			TenantID:    tenantID,
			SlotDate:    d,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			MaxFamilies: capacity,
			GuideName:   req.GuideName,
			Location:    req.Location,
			Active:      true,
		})
	}
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no dates in range match the requested weekday")
	}
	if err := s.slots.BulkCreate(ctx, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tour slots")
	}
	s.logger.Info("bulk created tour slots", zap.Int("count", len(slots)))
	return slots, nil
}

// ListSlots returns slots with booking counts for staff views.
func (s *TourService) ListSlots(ctx context.Context, filter models.TourSlotFilter) ([]models.TourSlotWithBookings, *models.Pagination, error) {
	slots, total, err := s.slots.ListWithBookings(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tour slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return slots, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AvailableSlots returns future, active slots with open seats for families.
func (s *TourService) AvailableSlots(ctx context.Context, tenantID string) ([]models.TourSlotWithBookings, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	slots, err := s.slots.ListAvailable(ctx, tenantID, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available slots")
	}
	return slots, nil
}

// UpdateSlot edits slot fields.
func (s *TourService) UpdateSlot(ctx context.Context, id string, req UpdateSlotRequest) (*models.TourSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot update")
	}
	if req.StartTime != nil {
		if err := validateTimeOfDay(*req.StartTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
		}
	}
	if req.EndTime != nil {
		if err := validateTimeOfDay(*req.EndTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
		}
	}
	update := repository.SlotUpdate{
		SlotDate:    req.SlotDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxFamilies: req.MaxFamilies,
		GuideName:   req.GuideName,
		Location:    req.Location,
		Active:      req.Active,
	}
	if err := s.slots.Update(ctx, id, update); err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tour slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update tour slot")
	}
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload tour slot")
	}
	return slot, nil
}

// DeleteSlot soft-deletes a slot. Slots with seat-holding bookings are protected.
func (s *TourService) DeleteSlot(ctx context.Context, id string) error {
	if _, err := s.slots.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "tour slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tour slot")
	}
	booked, err := s.slots.CountBookings(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count slot bookings")
	}
	if booked > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "slot has active bookings; cancel them first or deactivate the slot")
	}
	if err := s.slots.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "tour slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete tour slot")
	}
	return nil
}

// BookTour books an entry onto a slot. Capacity is enforced under the slot
// row lock, so overbooking cannot happen even under concurrent requests.
func (s *TourService) BookTour(ctx context.Context, actorID *string, req BookTourRequest) (*models.WaitlistEntry, *models.TourSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	entry, slot, err := s.entries.BookTour(ctx, repository.BookTourParams{
		EntryID: req.EntryID,
		SlotID:  req.SlotID,
		ActorID: actorID,
	})
	if err != nil {
		return nil, nil, mapTransitionError(err)
	}

	s.invalidateAnalytics(ctx, entry.TenantID)
	s.logger.Info("tour booked",
		zap.String("entry_id", entry.ID),
		zap.String("slot_id", slot.ID),
		zap.Time("tour_date", slot.StartsAt()))
	return entry, slot, nil
}

// RecordAttendance closes out a scheduled tour. Attendance moves the entry to
// tour_completed; a no-show returns it to waitlisted so the family can rebook.
func (s *TourService) RecordAttendance(ctx context.Context, entryID string, actorID *string, req AttendanceRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	// The no-show edge to waitlisted also exists from other stages, so the
	// stage graph alone cannot restrict attendance to scheduled tours.
	current, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	if current.Stage != models.StageTourScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("attendance requires stage %q, entry is at %q", models.StageTourScheduled, current.Stage))
	}

	to := models.StageTourCompleted
	note := "tour attended"
	if !req.Attended {
		to = models.StageWaitlisted
		note = "tour no-show"
	}
	attended := req.Attended

	patch := repository.EntryPatch{TourAttended: &attended}
	if req.Notes != "" {
		patch.TourNotes = &req.Notes
	}
	entry, err := s.entries.Transition(ctx, repository.TransitionParams{
		EntryID: entryID,
		To:      to,
		ActorID: actorID,
		Note:    note,
		Patch:   patch,
	})
	if err != nil {
		return nil, mapTransitionError(err)
	}
	s.invalidateAnalytics(ctx, entry.TenantID)
	return entry, nil
}
