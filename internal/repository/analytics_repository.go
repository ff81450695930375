package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/littleoaks/admissions-api/internal/models"
)

// AnalyticsRepository exposes read-optimised aggregation queries over the
// waitlist store for the pipeline report.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func tenantClause(tenantID string, args *[]interface{}) string {
	if tenantID == "" {
		return ""
	}
	*args = append(*args, tenantID)
	return fmt.Sprintf(" AND tenant_id = $%d", len(*args))
}

// StageCounts returns the number of non-deleted entries per current stage.
func (r *AnalyticsRepository) StageCounts(ctx context.Context, tenantID string) ([]models.StageCount, error) {
	var args []interface{}
	query := "SELECT stage, COUNT(*) AS count FROM waitlist_entries WHERE deleted_at IS NULL" +
		tenantClause(tenantID, &args) + " GROUP BY stage"
	var counts []models.StageCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("query stage counts: %w", err)
	}
	return counts, nil
}

// ActiveTotal counts entries in non-terminal, non-exited stages.
func (r *AnalyticsRepository) ActiveTotal(ctx context.Context, tenantID string) (int, error) {
	active := make([]string, 0, len(models.ActiveStages()))
	for _, s := range models.ActiveStages() {
		active = append(active, string(s))
	}
	args := []interface{}{pq.Array(active)}
	query := "SELECT COUNT(*) FROM waitlist_entries WHERE deleted_at IS NULL AND stage = ANY($1)" +
		tenantClause(tenantID, &args)
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("query active total: %w", err)
	}
	return total, nil
}

// funnelRow is one reached-stage count derived from stage_history, so entries
// that have since moved on still count toward earlier steps.
type funnelRow struct {
	Stage models.Stage `db:"to_stage"`
	Count int          `db:"count"`
}

// FunnelReached counts distinct entries that ever reached each stage.
func (r *AnalyticsRepository) FunnelReached(ctx context.Context, tenantID string) (map[models.Stage]int, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT h.to_stage, COUNT(DISTINCT h.entry_id) AS count
		FROM stage_history h
		JOIN waitlist_entries w ON w.id = h.entry_id
		WHERE w.deleted_at IS NULL`)
	var args []interface{}
	if tenantID != "" {
		args = append(args, tenantID)
		builder.WriteString(fmt.Sprintf(" AND w.tenant_id = $%d", len(args)))
	}
	builder.WriteString(" GROUP BY h.to_stage")

	var rows []funnelRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query funnel counts: %w", err)
	}
	reached := make(map[models.Stage]int, len(rows))
	for _, row := range rows {
		reached[row.Stage] = row.Count
	}
	return reached, nil
}

// ProgramDemand groups non-deleted entries by requested program.
func (r *AnalyticsRepository) ProgramDemand(ctx context.Context, tenantID string) ([]models.ProgramDemand, error) {
	var args []interface{}
	query := `SELECT COALESCE(NULLIF(requested_program, ''), 'unspecified') AS program, COUNT(*) AS count
		FROM waitlist_entries WHERE deleted_at IS NULL` +
		tenantClause(tenantID, &args) + " GROUP BY program ORDER BY count DESC"
	var demand []models.ProgramDemand
	if err := r.db.SelectContext(ctx, &demand, query, args...); err != nil {
		return nil, fmt.Errorf("query program demand: %w", err)
	}
	return demand, nil
}

// ReferralCounts groups non-deleted entries by referral source.
func (r *AnalyticsRepository) ReferralCounts(ctx context.Context, tenantID string) ([]models.ReferralCount, error) {
	var args []interface{}
	query := `SELECT COALESCE(NULLIF(referral_source, ''), 'unknown') AS source, COUNT(*) AS count
		FROM waitlist_entries WHERE deleted_at IS NULL` +
		tenantClause(tenantID, &args) + " GROUP BY source ORDER BY count DESC"
	var referrals []models.ReferralCount
	if err := r.db.SelectContext(ctx, &referrals, query, args...); err != nil {
		return nil, fmt.Errorf("query referral counts: %w", err)
	}
	return referrals, nil
}

// stageDurationRow pairs each history record with the timestamp of the next
// record for the same entry, yielding the time spent in to_stage.
type stageDurationRow struct {
	Stage       models.Stage `db:"to_stage"`
	AverageDays float64      `db:"average_days"`
	Samples     int          `db:"samples"`
}

// StageDurations computes the average dwell time per stage from the ordered
// history. Only closed intervals count; the current stage of a live entry has
// no exit yet and is excluded.
func (r *AnalyticsRepository) StageDurations(ctx context.Context, tenantID string) ([]models.StageDuration, error) {
	var builder strings.Builder
	builder.WriteString(`WITH spans AS (
			SELECT h.entry_id, h.to_stage, h.created_at AS entered_at,
				LEAD(h.created_at) OVER (PARTITION BY h.entry_id ORDER BY h.seq) AS exited_at
			FROM stage_history h
			JOIN waitlist_entries w ON w.id = h.entry_id
			WHERE w.deleted_at IS NULL`)
	var args []interface{}
	if tenantID != "" {
		args = append(args, tenantID)
		builder.WriteString(fmt.Sprintf(" AND w.tenant_id = $%d", len(args)))
	}
	builder.WriteString(`)
		SELECT to_stage,
			AVG(EXTRACT(EPOCH FROM exited_at - entered_at) / 86400.0) AS average_days,
			COUNT(*) AS samples
		FROM spans WHERE exited_at IS NOT NULL
		GROUP BY to_stage`)

	var rows []stageDurationRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	durations := make([]models.StageDuration, 0, len(rows))
	for _, row := range rows {
		durations = append(durations, models.StageDuration{
			Stage:       row.Stage,
			AverageDays: row.AverageDays,
			Samples:     row.Samples,
		})
	}
	return durations, nil
}
