package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/littleoaks/admissions-api/internal/middleware"
	"github.com/littleoaks/admissions-api/internal/service"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
	"github.com/littleoaks/admissions-api/pkg/response"
)

// AnalyticsHandler exposes the pipeline report endpoints.
type AnalyticsHandler struct {
	analytics     *service.AnalyticsService
	exports       *service.ExportService
	defaultTenant string
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService, exports *service.ExportService, defaultTenant string) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, exports: exports, defaultTenant: defaultTenant}
}

// Pipeline godoc
// @Summary Admissions funnel report
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/pipeline [get]
func (h *AnalyticsHandler) Pipeline(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.Pipeline(c.Request.Context(), tenantFrom(c, h.defaultTenant))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// Export godoc
// @Summary Export the funnel report as CSV or PDF
// @Tags Analytics
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /analytics/pipeline/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Pipeline(c.Request.Context(), tenantFrom(c, h.defaultTenant), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// System godoc
// @Summary Runtime instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	middleware.SetCacheHit(c, false)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, metrics, nil, meta)
}
