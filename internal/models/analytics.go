package models

import "time"

// StageCount is the number of non-deleted entries currently in a stage.
type StageCount struct {
	Stage Stage `db:"stage" json:"stage"`
	Count int   `db:"count" json:"count"`
}

// FunnelStep is one step of the conversion funnel.
type FunnelStep struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ProgramDemand groups entries by requested program.
type ProgramDemand struct {
	Program string `db:"program" json:"program"`
	Count   int    `db:"count" json:"count"`
}

// ReferralCount groups entries by referral source.
type ReferralCount struct {
	Source string `db:"source" json:"source"`
	Count  int    `db:"count" json:"count"`
}

// StageDuration reports the average days entries spend in a stage before exiting it.
type StageDuration struct {
	Stage       Stage   `json:"stage"`
	AverageDays float64 `json:"average_days"`
	Samples     int     `json:"samples"`
}

// PipelineAnalytics is the read-only funnel report over the waitlist store.
type PipelineAnalytics struct {
	TenantID       string          `json:"tenant_id,omitempty"`
	StageCounts    []StageCount    `json:"stage_counts"`
	ActiveTotal    int             `json:"active_total"`
	Funnel         []FunnelStep    `json:"funnel"`
	ConversionRate float64         `json:"conversion_rate"`
	ProgramDemand  []ProgramDemand `json:"program_demand"`
	Referrals      []ReferralCount `json:"referrals"`
	StageDurations []StageDuration `json:"stage_durations"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// AnalyticsSystemMetrics summarises runtime instrumentation for ops dashboards.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
