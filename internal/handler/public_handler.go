package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/littleoaks/admissions-api/internal/service"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
	"github.com/littleoaks/admissions-api/pkg/response"
)

// PublicHandler exposes the unauthenticated family-facing endpoints.
type PublicHandler struct {
	waitlist      *service.WaitlistService
	tours         *service.TourService
	defaultTenant string
	allowBooking  bool
}

// NewPublicHandler constructs PublicHandler.
func NewPublicHandler(waitlist *service.WaitlistService, tours *service.TourService, defaultTenant string, allowBooking bool) *PublicHandler {
	return &PublicHandler{waitlist: waitlist, tours: tours, defaultTenant: defaultTenant, allowBooking: allowBooking}
}

// SubmitInquiry godoc
// @Summary Submit an admissions inquiry
// @Tags Public
// @Accept json
// @Produce json
// @Param payload body service.SubmitInquiryRequest true "Inquiry payload"
// @Success 201 {object} response.Envelope
// @Router /public/inquiries [post]
func (h *PublicHandler) SubmitInquiry(c *gin.Context) {
	var req service.SubmitInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlist.SubmitInquiry(c.Request.Context(), tenantFrom(c, h.defaultTenant), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Families see a confirmation, not the internal record.
	response.Created(c, gin.H{
		"reference":    entry.ID,
		"stage":        entry.Stage,
		"inquiry_date": entry.InquiryDate,
	})
}

// InquiryStatus godoc
// @Summary Check the status of an admissions journey
// @Tags Public
// @Produce json
// @Param parent_email query string true "Parent email"
// @Param child_first_name query string true "Child first name"
// @Param child_last_name query string true "Child last name"
// @Success 200 {object} response.Envelope
// @Router /public/inquiries/status [get]
func (h *PublicHandler) InquiryStatus(c *gin.Context) {
	req := service.InquiryStatusRequest{
		ParentEmail:    c.Query("parent_email"),
		ChildFirstName: c.Query("child_first_name"),
		ChildLastName:  c.Query("child_last_name"),
	}
	status, err := h.waitlist.InquiryStatus(c.Request.Context(), tenantFrom(c, h.defaultTenant), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// AvailableSlots godoc
// @Summary List bookable tour slots
// @Tags Public
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /public/tour-slots [get]
func (h *PublicHandler) AvailableSlots(c *gin.Context) {
	slots, err := h.tours.AvailableSlots(c.Request.Context(), tenantFrom(c, h.defaultTenant))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// PublicBookingRequest identifies a journey by its public key and books a slot.
type PublicBookingRequest struct {
	ParentEmail    string `json:"parent_email" validate:"required,email"`
	ChildFirstName string `json:"child_first_name" validate:"required"`
	ChildLastName  string `json:"child_last_name" validate:"required"`
	SlotID         string `json:"slot_id" validate:"required"`
}

// BookTour godoc
// @Summary Book a tour for an existing journey
// @Tags Public
// @Accept json
// @Produce json
// @Param payload body PublicBookingRequest true "Booking payload"
// @Success 200 {object} response.Envelope
// @Router /public/tour-bookings [post]
func (h *PublicHandler) BookTour(c *gin.Context) {
	if !h.allowBooking {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "online tour booking is disabled"))
		return
	}
	var req PublicBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entryID, err := h.waitlist.ResolveEntryID(c.Request.Context(), tenantFrom(c, h.defaultTenant), service.InquiryStatusRequest{
		ParentEmail:    req.ParentEmail,
		ChildFirstName: req.ChildFirstName,
		ChildLastName:  req.ChildLastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	entry, slot, err := h.tours.BookTour(c.Request.Context(), nil, service.BookTourRequest{
		EntryID: entryID,
		SlotID:  req.SlotID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"stage":     entry.Stage,
		"tour_date": entry.TourDate,
		"location":  slot.Location,
	}, nil)
}
