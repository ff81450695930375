package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/internal/service"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
	"github.com/littleoaks/admissions-api/pkg/response"
)

// WaitlistHandler exposes staff endpoints for waitlist entries.
type WaitlistHandler struct {
	waitlist      *service.WaitlistService
	exports       *service.ExportService
	defaultTenant string
}

// NewWaitlistHandler constructs WaitlistHandler.
func NewWaitlistHandler(waitlist *service.WaitlistService, exports *service.ExportService, defaultTenant string) *WaitlistHandler {
	return &WaitlistHandler{waitlist: waitlist, exports: exports, defaultTenant: defaultTenant}
}

func tenantFrom(c *gin.Context, fallback string) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	return fallback
}

func actorFrom(c *gin.Context) *string {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	return &claims.UserID
}

// List godoc
// @Summary List waitlist entries
// @Tags Waitlist
// @Produce json
// @Param stage query string false "Filter by stage"
// @Param program query string false "Filter by requested program"
// @Param search query string false "Search child or parent"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /waitlist [get]
func (h *WaitlistHandler) List(c *gin.Context) {
	var filter models.WaitlistFilter
	filter.TenantID = tenantFrom(c, h.defaultTenant)
	filter.Stage = models.Stage(c.Query("stage"))
	filter.Program = c.Query("program")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	entries, pagination, err := h.waitlist.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get a waitlist entry with its stage history
// @Tags Waitlist
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id} [get]
func (h *WaitlistHandler) Get(c *gin.Context) {
	detail, err := h.waitlist.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create an inquiry on a family's behalf
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param payload body service.SubmitInquiryRequest true "Inquiry payload"
// @Success 201 {object} response.Envelope
// @Router /waitlist [post]
func (h *WaitlistHandler) Create(c *gin.Context) {
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
	response.Created(c, entry)
}

// Update godoc
// @Summary Update entry metadata
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.UpdateEntryRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id} [put]
func (h *WaitlistHandler) Update(c *gin.Context) {
	var req service.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlist.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Transition godoc
// @Summary Move an entry along the stage graph
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/transition [post]
func (h *WaitlistHandler) Transition(c *gin.Context) {
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlist.Transition(c.Request.Context(), c.Param("id"), actorFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Withdraw godoc
// @Summary Withdraw an entry from the pipeline
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/withdraw [post]
func (h *WaitlistHandler) Withdraw(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	// The body is optional; a missing body reads as EOF, anything else
	// malformed is rejected.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlist.Withdraw(c.Request.Context(), c.Param("id"), actorFrom(c), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Soft delete a waitlist entry
// @Tags Waitlist
// @Produce json
// @Param id path string true "Entry ID"
// @Success 204
// @Router /waitlist/{id} [delete]
func (h *WaitlistHandler) Delete(c *gin.Context) {
	if err := h.waitlist.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export the waitlist as CSV or PDF
// @Tags Waitlist
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param stage query string false "Filter by stage"
// @Success 200 {file} file
// @Router /waitlist/export [get]
func (h *WaitlistHandler) Export(c *gin.Context) {
	filter := models.WaitlistFilter{
		TenantID: tenantFrom(c, h.defaultTenant),
		Stage:    models.Stage(c.Query("stage")),
		Program:  c.Query("program"),
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Waitlist(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
