package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/service"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
	"github.com/littleoaks/admissions-api/pkg/response"
)

// TourHandler exposes staff endpoints for tour slots, bookings and attendance.
type TourHandler struct {
	tours         *service.TourService
	defaultTenant string
}

// NewTourHandler constructs TourHandler.
func NewTourHandler(tours *service.TourService, defaultTenant string) *TourHandler {
	return &TourHandler{tours: tours, defaultTenant: defaultTenant}
}

// ListSlots godoc
// @Summary List tour slots with booking counts
// @Tags Tours
// @Produce json
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Param active query bool false "Filter by active"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tour-slots [get]
func (h *TourHandler) ListSlots(c *gin.Context) {
	var filter models.TourSlotFilter
	filter.TenantID = tenantFrom(c, h.defaultTenant)
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &t
		}
	}
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	slots, pagination, err := h.tours.ListSlots(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, pagination)
}

// CreateSlot godoc
// @Summary Create a tour slot
// @Tags Tours
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /tour-slots [post]
func (h *TourHandler) CreateSlot(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.tours.CreateSlot(c.Request.Context(), tenantFrom(c, h.defaultTenant), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// BulkCreateSlots godoc
// @Summary Create a weekly series of tour slots
// @Tags Tours
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateSlotsRequest true "Bulk payload"
// @Success 201 {object} response.Envelope
// @Router /tour-slots/bulk [post]
func (h *TourHandler) BulkCreateSlots(c *gin.Context) {
	var req service.BulkCreateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slots, err := h.tours.BulkCreateSlots(c.Request.Context(), tenantFrom(c, h.defaultTenant), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slots)
}

// UpdateSlot godoc
// @Summary Update a tour slot
// @Tags Tours
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.UpdateSlotRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /tour-slots/{id} [put]
func (h *TourHandler) UpdateSlot(c *gin.Context) {
	var req service.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.tours.UpdateSlot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// DeleteSlot godoc
// @Summary Delete a tour slot without bookings
// @Tags Tours
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204
// @Router /tour-slots/{id} [delete]
func (h *TourHandler) DeleteSlot(c *gin.Context) {
	if err := h.tours.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BookTour godoc
// @Summary Book a waitlist entry onto a tour slot
// @Tags Tours
// @Accept json
// @Produce json
// @Param payload body service.BookTourRequest true "Booking payload"
// @Success 200 {object} response.Envelope
// @Router /tour-bookings [post]
func (h *TourHandler) BookTour(c *gin.Context) {
	var req service.BookTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, slot, err := h.tours.BookTour(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"entry": entry, "slot": slot}, nil)
}

// RecordAttendance godoc
// @Summary Record tour attendance for an entry
// @Tags Tours
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.AttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/attendance [post]
func (h *TourHandler) RecordAttendance(c *gin.Context) {
	var req service.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.tours.RecordAttendance(c.Request.Context(), c.Param("id"), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
