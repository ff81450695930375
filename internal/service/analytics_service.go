package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/littleoaks/admissions-api/internal/models"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	StageCounts(ctx context.Context, tenantID string) ([]models.StageCount, error)
	ActiveTotal(ctx context.Context, tenantID string) (int, error)
	FunnelReached(ctx context.Context, tenantID string) (map[models.Stage]int, error)
	ProgramDemand(ctx context.Context, tenantID string) ([]models.ProgramDemand, error)
	ReferralCounts(ctx context.Context, tenantID string) ([]models.ReferralCount, error)
	StageDurations(ctx context.Context, tenantID string) ([]models.StageDuration, error)
}

// AnalyticsService builds the read-only pipeline report with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// funnelOrder fixes the report's step sequence. Steps use reached-stage
// counts, so an entry that moved past a stage still counts toward it.
var funnelOrder = []struct {
	name  string
	stage models.Stage
}{
	{"inquiries", models.StageInquiry},
	{"waitlisted", models.StageWaitlisted},
	{"tours_scheduled", models.StageTourScheduled},
	{"tours_completed", models.StageTourCompleted},
	{"offers_made", models.StageOffered},
	{"offers_accepted", models.StageAccepted},
	{"enrolled", models.StageEnrolled},
}

// Pipeline assembles the funnel report. The boolean indicates whether the
// report originated from cache.
func (s *AnalyticsService) Pipeline(ctx context.Context, tenantID string) (*models.PipelineAnalytics, bool, error) {
	cacheKey := makeAnalyticsCacheKey("pipeline", tenantID)
	var cached models.PipelineAnalytics
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get pipeline cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	stageCounts, err := s.repo.StageCounts(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	activeTotal, err := s.repo.ActiveTotal(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	reached, err := s.repo.FunnelReached(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	demand, err := s.repo.ProgramDemand(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	referrals, err := s.repo.ReferralCounts(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	durations, err := s.repo.StageDurations(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_pipeline", time.Since(start))
	}

	funnel := make([]models.FunnelStep, 0, len(funnelOrder))
	for _, step := range funnelOrder {
		funnel = append(funnel, models.FunnelStep{Name: step.name, Count: reached[step.stage]})
	}
	conversion := 0.0
	if inquiries := reached[models.StageInquiry]; inquiries > 0 {
		conversion = float64(reached[models.StageEnrolled]) / float64(inquiries)
	}

	report := &models.PipelineAnalytics{
		TenantID:       tenantID,
		StageCounts:    stageCounts,
		ActiveTotal:    activeTotal,
		Funnel:         funnel,
		ConversionRate: conversion,
		ProgramDemand:  demand,
		Referrals:      referrals,
		StageDurations: durations,
		GeneratedAt:    time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache pipeline report", zap.Error(err))
		}
	}
	return report, false, nil
}

// Invalidate drops any cached pipeline report for the tenant. Stage writers
// call this so the report never serves stale funnel numbers past the TTL.
func (s *AnalyticsService) Invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, makeAnalyticsCacheKey("pipeline", tenantID)+"*"); err != nil && s.logger != nil {
		s.logger.Warn("invalidate pipeline cache", zap.Error(err))
	}
}

// SystemMetrics returns a system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
