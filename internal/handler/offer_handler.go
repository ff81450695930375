package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/littleoaks/admissions-api/internal/service"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
	"github.com/littleoaks/admissions-api/pkg/response"
)

// OfferHandler exposes the offer lifecycle endpoints.
type OfferHandler struct {
	offers *service.OfferService
}

// NewOfferHandler constructs OfferHandler.
func NewOfferHandler(offers *service.OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

// MakeOffer godoc
// @Summary Extend an enrollment offer
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.MakeOfferRequest true "Offer payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/offer [post]
func (h *OfferHandler) MakeOffer(c *gin.Context) {
	var req service.MakeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.offers.MakeOffer(c.Request.Context(), c.Param("id"), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Accept godoc
// @Summary Accept an offer and convert the entry to an application
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.OfferResponseRequest true "Acceptance payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/offer/accept [post]
func (h *OfferHandler) Accept(c *gin.Context) {
	var req service.OfferResponseRequest
	// The body is optional; a missing body reads as EOF, anything else
	// malformed is rejected.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.offers.AcceptOffer(c.Request.Context(), c.Param("id"), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Decline godoc
// @Summary Decline an offer
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.OfferResponseRequest true "Decline payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/offer/decline [post]
func (h *OfferHandler) Decline(c *gin.Context) {
	var req service.OfferResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.offers.DeclineOffer(c.Request.Context(), c.Param("id"), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
