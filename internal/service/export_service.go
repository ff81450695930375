package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/littleoaks/admissions-api/internal/models"
	"github.com/littleoaks/admissions-api/pkg/export"
	appErrors "github.com/littleoaks/admissions-api/pkg/errors"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

// Supported export formats.
const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportEntryLister interface {
	List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered file ready to stream to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders waitlist and pipeline datasets as downloadable files.
type ExportService struct {
	entries   exportEntryLister
	analytics AnalyticsRepository
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(entries exportEntryLister, analytics AnalyticsRepository, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{entries: entries, analytics: analytics, csv: csv, pdf: pdf, logger: logger}
}

// Waitlist renders the filtered waitlist as a file.
func (s *ExportService) Waitlist(ctx context.Context, filter models.WaitlistFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = 100
	var all []models.WaitlistEntry
	for {
		entries, total, err := s.entries.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist for export")
		}
		all = append(all, entries...)
		if len(all) >= total || len(entries) == 0 {
			break
		}
		filter.Page++
	}

	rows := make([]map[string]string, 0, len(all))
	for _, entry := range all {
		rows = append(rows, map[string]string{
			"Child":        entry.ChildFirstName + " " + entry.ChildLastName,
			"Stage":        string(entry.Stage),
			"Priority":     fmt.Sprintf("%d", entry.Priority),
			"Program":      entry.RequestedProgram,
			"Parent":       entry.ParentName,
			"Email":        entry.ParentEmail,
			"Phone":        entry.ParentPhone,
			"Referral":     entry.ReferralSource,
			"Inquiry Date": entry.InquiryDate.UTC().Format("2006-01-02"),
			"Tour Date":    formatExportTime(entry.TourDate),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Child", "Stage", "Priority", "Program", "Parent", "Email", "Phone", "Referral", "Inquiry Date", "Tour Date"},
		Rows:    rows,
	}
	return s.render(dataset, "Waitlist Export", "waitlist", format)
}

// Pipeline renders the funnel report as a file.
func (s *ExportService) Pipeline(ctx context.Context, tenantID string, format ExportFormat) (*ExportResult, error) {
	counts, err := s.analytics.StageCounts(ctx, tenantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage counts for export")
	}
	reached, err := s.analytics.FunnelReached(ctx, tenantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load funnel for export")
	}

	current := make(map[models.Stage]int, len(counts))
	for _, c := range counts {
		current[c.Stage] = c.Count
	}
	rows := make([]map[string]string, 0, len(models.AllStages()))
	for _, stage := range models.AllStages() {
		rows = append(rows, map[string]string{
			"Stage":        string(stage),
			"Current":      fmt.Sprintf("%d", current[stage]),
			"Ever Reached": fmt.Sprintf("%d", reached[stage]),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Stage", "Current", "Ever Reached"},
		Rows:    rows,
	}
	return s.render(dataset, "Admissions Pipeline", "pipeline", format)
}

func (s *ExportService) render(dataset export.Dataset, title, prefix string, format ExportFormat) (*ExportResult, error) {
	timestamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.csv", prefix, timestamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.pdf", prefix, timestamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
