package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/littleoaks/admissions-api/internal/models"
)

const slotColumns = `id, tenant_id, slot_date, start_time, end_time, max_families, guide_name,
	location, active, deleted_at, created_at, updated_at`

// TourSlotRepository manages bookable tour windows. Booking counts are always
// derived from seat-holding waitlist entries, never stored on the slot row.
type TourSlotRepository struct {
	db *sqlx.DB
}

// NewTourSlotRepository constructs the repository.
func NewTourSlotRepository(db *sqlx.DB) *TourSlotRepository {
	return &TourSlotRepository{db: db}
}

// Create inserts a single slot.
func (r *TourSlotRepository) Create(ctx context.Context, slot *models.TourSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `INSERT INTO tour_slots (` + slotColumns + `)
		VALUES (:id, :tenant_id, :slot_date, :start_time, :end_time, :max_families, :guide_name,
			:location, :active, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create tour slot: %w", err)
	}
	return nil
}

// BulkCreate inserts many slots in one transaction, typically a recurring
// weekly pattern expanded by the service.
func (r *TourSlotRepository) BulkCreate(ctx context.Context, slots []*models.TourSlot) (err error) {
	if len(slots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk slot create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO tour_slots (` + slotColumns + `)
		VALUES (:id, :tenant_id, :slot_date, :start_time, :end_time, :max_families, :guide_name,
			:location, :active, :deleted_at, :created_at, :updated_at)`
	for _, slot := range slots {
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.CreatedAt = now
		slot.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, query, slot); err != nil {
			return fmt.Errorf("bulk create tour slot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk slot create: %w", err)
	}
	return nil
}

// FindByID returns a non-deleted slot by identifier.
func (r *TourSlotRepository) FindByID(ctx context.Context, id string) (*models.TourSlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM tour_slots WHERE id = $1 AND deleted_at IS NULL`
	var slot models.TourSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tour slot: %w", err)
	}
	return &slot, nil
}

// ListWithBookings returns slots with their derived booking counts for staff views.
func (r *TourSlotRepository) ListWithBookings(ctx context.Context, filter models.TourSlotFilter) ([]models.TourSlotWithBookings, int, error) {
	seatHolding := make([]string, 0, len(models.SeatHoldingStages()))
	for _, s := range models.SeatHoldingStages() {
		seatHolding = append(seatHolding, string(s))
	}

	type slotFilter struct {
		expr string
		arg  interface{}
	}
	var filters []slotFilter
	if filter.TenantID != "" {
		filters = append(filters, slotFilter{"s.tenant_id = $%d", filter.TenantID})
	}
	if filter.DateFrom != nil {
		filters = append(filters, slotFilter{"s.slot_date >= $%d", *filter.DateFrom})
	}
	if filter.DateTo != nil {
		filters = append(filters, slotFilter{"s.slot_date <= $%d", *filter.DateTo})
	}
	if filter.Active != nil {
		filters = append(filters, slotFilter{"s.active = $%d", *filter.Active})
	}

	// The seat-holding array is $1 in the join, so filter placeholders start at $2.
	conditions := []string{"s.deleted_at IS NULL"}
	args := []interface{}{pq.Array(seatHolding)}
	for _, f := range filters {
		args = append(args, f.arg)
		conditions = append(conditions, fmt.Sprintf(f.expr, len(args)))
	}
	where := strings.Join(conditions, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT s.id, s.tenant_id, s.slot_date, s.start_time, s.end_time, s.max_families,
			s.guide_name, s.location, s.active, s.deleted_at, s.created_at, s.updated_at,
			COUNT(w.id) AS booked_count
		FROM tour_slots s
		LEFT JOIN waitlist_entries w
			ON w.tour_slot_id = s.id AND w.stage = ANY($1) AND w.deleted_at IS NULL
		WHERE %s
		GROUP BY s.id
		ORDER BY s.slot_date ASC, s.start_time ASC
		LIMIT %d OFFSET %d`, where, size, (page-1)*size)

	var slots []models.TourSlotWithBookings
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tour slots: %w", err)
	}
	for i := range slots {
		remaining := slots[i].MaxFamilies - slots[i].BookedCount
		if remaining < 0 {
			remaining = 0
		}
		slots[i].SpotsRemaining = remaining
	}

	// No join on the count statement, so its placeholders number from $1.
	countConditions := []string{"s.deleted_at IS NULL"}
	countArgs := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		countArgs = append(countArgs, f.arg)
		countConditions = append(countConditions, fmt.Sprintf(f.expr, len(countArgs)))
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tour_slots s WHERE %s", strings.Join(countConditions, " AND "))
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count tour slots: %w", err)
	}
	return slots, total, nil
}

// ListAvailable returns active future slots that still have open seats,
// the public view families book from.
func (r *TourSlotRepository) ListAvailable(ctx context.Context, tenantID string, from time.Time) ([]models.TourSlotWithBookings, error) {
	seatHolding := make([]string, 0, len(models.SeatHoldingStages()))
	for _, s := range models.SeatHoldingStages() {
		seatHolding = append(seatHolding, string(s))
	}

	const query = `SELECT s.id, s.tenant_id, s.slot_date, s.start_time, s.end_time, s.max_families,
			s.guide_name, s.location, s.active, s.deleted_at, s.created_at, s.updated_at,
			COUNT(w.id) AS booked_count
		FROM tour_slots s
		LEFT JOIN waitlist_entries w
			ON w.tour_slot_id = s.id AND w.stage = ANY($1) AND w.deleted_at IS NULL
		WHERE s.deleted_at IS NULL AND s.active = TRUE AND s.tenant_id = $2 AND s.slot_date >= $3
		GROUP BY s.id
		HAVING COUNT(w.id) < s.max_families
		ORDER BY s.slot_date ASC, s.start_time ASC`

	var slots []models.TourSlotWithBookings
	if err := r.db.SelectContext(ctx, &slots, query, pq.Array(seatHolding), tenantID, from); err != nil {
		return nil, fmt.Errorf("list available tour slots: %w", err)
	}
	for i := range slots {
		slots[i].SpotsRemaining = slots[i].MaxFamilies - slots[i].BookedCount
	}
	return slots, nil
}

// SlotUpdate carries optional field updates for a slot.
type SlotUpdate struct {
	SlotDate    *time.Time
	StartTime   *string
	EndTime     *string
	MaxFamilies *int
	GuideName   *string
	Location    *string
	Active      *bool
}

// Update applies field edits to a slot. Deactivating a slot never touches
// existing bookings.
func (r *TourSlotRepository) Update(ctx context.Context, id string, update SlotUpdate) error {
	sets := []string{}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.SlotDate != nil {
		add("slot_date", *update.SlotDate)
	}
	if update.StartTime != nil {
		add("start_time", *update.StartTime)
	}
	if update.EndTime != nil {
		add("end_time", *update.EndTime)
	}
	if update.MaxFamilies != nil {
		add("max_families", *update.MaxFamilies)
	}
	if update.GuideName != nil {
		add("guide_name", *update.GuideName)
	}
	if update.Location != nil {
		add("location", *update.Location)
	}
	if update.Active != nil {
		add("active", *update.Active)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE tour_slots SET %s WHERE id = $1 AND deleted_at IS NULL", strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update tour slot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// CountBookings returns the number of seat-holding entries referencing a slot.
func (r *TourSlotRepository) CountBookings(ctx context.Context, slotID string) (int, error) {
	seatHolding := make([]string, 0, len(models.SeatHoldingStages()))
	for _, s := range models.SeatHoldingStages() {
		seatHolding = append(seatHolding, string(s))
	}
	const query = `SELECT COUNT(*) FROM waitlist_entries
		WHERE tour_slot_id = $1 AND stage = ANY($2) AND deleted_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, slotID, pq.Array(seatHolding)); err != nil {
		return 0, fmt.Errorf("count slot bookings: %w", err)
	}
	return count, nil
}

// SoftDelete marks a slot deleted. Slots with seat-holding bookings are
// protected; the service checks CountBookings first.
func (r *TourSlotRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE tour_slots SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete tour slot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSlotNotFound
	}
	return nil
}
