package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleoaks/admissions-api/internal/models"
)

type mockAnalyticsRepo struct {
	stageCounts []models.StageCount
	activeTotal int
	reached     map[models.Stage]int
	demand      []models.ProgramDemand
	referrals   []models.ReferralCount
	durations   []models.StageDuration
	calls       int
}

func (m *mockAnalyticsRepo) StageCounts(ctx context.Context, tenantID string) ([]models.StageCount, error) {
	m.calls++
	return m.stageCounts, nil
}

func (m *mockAnalyticsRepo) ActiveTotal(ctx context.Context, tenantID string) (int, error) {
	return m.activeTotal, nil
}

func (m *mockAnalyticsRepo) FunnelReached(ctx context.Context, tenantID string) (map[models.Stage]int, error) {
	return m.reached, nil
}

func (m *mockAnalyticsRepo) ProgramDemand(ctx context.Context, tenantID string) ([]models.ProgramDemand, error) {
	return m.demand, nil
}

func (m *mockAnalyticsRepo) ReferralCounts(ctx context.Context, tenantID string) ([]models.ReferralCount, error) {
	return m.referrals, nil
}

func (m *mockAnalyticsRepo) StageDurations(ctx context.Context, tenantID string) ([]models.StageDuration, error) {
	return m.durations, nil
}

func TestAnalyticsServicePipeline(t *testing.T) {
	repo := &mockAnalyticsRepo{
		stageCounts: []models.StageCount{
			{Stage: models.StageWaitlisted, Count: 12},
			{Stage: models.StageOffered, Count: 3},
		},
		activeTotal: 15,
		reached: map[models.Stage]int{
			models.StageInquiry:       40,
			models.StageWaitlisted:    30,
			models.StageTourScheduled: 20,
			models.StageTourCompleted: 16,
			models.StageOffered:       10,
			models.StageAccepted:      8,
			models.StageEnrolled:      6,
		},
		demand: []models.ProgramDemand{{Program: "toddler", Count: 25}},
	}
	svc := NewAnalyticsService(repo, nil, nil, nil)

	report, fromCache, err := svc.Pipeline(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 15, report.ActiveTotal)
	require.Len(t, report.Funnel, 7)
	assert.Equal(t, "inquiries", report.Funnel[0].Name)
	assert.Equal(t, 40, report.Funnel[0].Count)
	assert.Equal(t, "enrolled", report.Funnel[6].Name)
	assert.Equal(t, 6, report.Funnel[6].Count)
	assert.InDelta(t, 0.15, report.ConversionRate, 0.0001)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestAnalyticsServicePipelineNoInquiries(t *testing.T) {
	repo := &mockAnalyticsRepo{reached: map[models.Stage]int{}}
	svc := NewAnalyticsService(repo, nil, nil, nil)

	report, _, err := svc.Pipeline(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Zero(t, report.ConversionRate, "empty funnel must not divide by zero")
	for _, step := range report.Funnel {
		assert.Zero(t, step.Count)
	}
}

func TestMakeAnalyticsCacheKey(t *testing.T) {
	assert.Equal(t, "analytics:pipeline:tenant-1", makeAnalyticsCacheKey("pipeline", "tenant-1"))
	assert.Equal(t, "analytics:pipeline", makeAnalyticsCacheKey("pipeline", ""))
	assert.Equal(t, "analytics:pipeline:a|b", makeAnalyticsCacheKey("pipeline", "a:b"))
}
