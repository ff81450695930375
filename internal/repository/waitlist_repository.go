package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/littleoaks/admissions-api/internal/models"
)

// Sentinel errors surfaced by transactional waitlist operations. Services map
// these onto the public error taxonomy.
var (
	ErrEntryNotFound    = errors.New("waitlist entry not found")
	ErrSlotNotFound     = errors.New("tour slot not found")
	ErrSlotInactive     = errors.New("tour slot inactive")
	ErrSlotFull         = errors.New("tour slot capacity reached")
	ErrDuplicateInquiry = errors.New("open inquiry already exists for this child")
)

// StageConflictError reports a transition rejected under the entry row lock.
type StageConflictError struct {
	Current models.Stage
	Allowed []models.Stage
}

func (e *StageConflictError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot transition from %q; allowed: [%s]", e.Current, strings.Join(allowed, ", "))
}

const entryColumns = `id, tenant_id, stage, priority, child_first_name, child_last_name, child_dob,
	requested_program, requested_start_date, parent_name, parent_email, parent_phone, referral_source,
	tour_slot_id, tour_date, tour_attended, tour_notes,
	offered_program, offered_start_date, offer_expires_at, offer_response, offer_response_at,
	converted_application_id, inquiry_date, notes, deleted_at, created_at, updated_at`

// EntryPatch carries optional field updates applied atomically with a stage write.
// Nil pointers leave the column untouched.
type EntryPatch struct {
	TourSlotID             *string
	TourDate               *time.Time
	TourAttended           *bool
	TourNotes              *string
	OfferedProgram         *string
	OfferedStartDate       *time.Time
	OfferExpiresAt         *time.Time
	OfferResponse          *string
	OfferResponseAt        *time.Time
	ConvertedApplicationID *string
}

// TransitionParams describes one audited stage write.
type TransitionParams struct {
	EntryID string
	To      models.Stage
	ActorID *string
	Note    string
	Patch   EntryPatch
}

// BookTourParams describes a capacity-checked tour booking.
type BookTourParams struct {
	EntryID string
	SlotID  string
	ActorID *string
}

// WaitlistRepository is the sole writer of waitlist entry stages. Every stage
// write locks the entry row and appends a stage_history record in the same
// transaction, so the entry and its audit trail can never diverge.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Create inserts a new entry at the inquiry stage together with its creation
// history record. A concurrent duplicate is rejected by the partial unique
// index on (tenant, parent email, child name) covering open journeys.
func (r *WaitlistRepository) Create(ctx context.Context, entry *models.WaitlistEntry) (err error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.Stage = models.StageInquiry
	if entry.InquiryDate.IsZero() {
		entry.InquiryDate = now
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inquiry transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO waitlist_entries (` + entryColumns + `)
		VALUES (:id, :tenant_id, :stage, :priority, :child_first_name, :child_last_name, :child_dob,
			:requested_program, :requested_start_date, :parent_name, :parent_email, :parent_phone, :referral_source,
			:tour_slot_id, :tour_date, :tour_attended, :tour_notes,
			:offered_program, :offered_start_date, :offer_expires_at, :offer_response, :offer_response_at,
			:converted_application_id, :inquiry_date, :notes, :deleted_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, entry); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrDuplicateInquiry
			return err
		}
		return fmt.Errorf("create waitlist entry: %w", err)
	}

	if err = r.insertHistoryTx(ctx, tx, entry.ID, 1, nil, models.StageInquiry, nil, "inquiry submitted"); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit inquiry: %w", err)
	}
	return nil
}

// HasOpenInquiry reports whether a non-deleted entry outside the declined and
// withdrawn stages already exists for the same child and parent email.
func (r *WaitlistRepository) HasOpenInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (bool, error) {
	const query = `SELECT 1 FROM waitlist_entries
		WHERE tenant_id = $1 AND LOWER(parent_email) = LOWER($2)
			AND LOWER(child_first_name) = LOWER($3) AND LOWER(child_last_name) = LOWER($4)
			AND stage NOT IN ($5, $6) AND deleted_at IS NULL
		LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, tenantID, parentEmail, childFirst, childLast,
		models.StageDeclined, models.StageWithdrawn); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open inquiry: %w", err)
	}
	return true, nil
}

// FindByID returns a non-deleted entry by identifier.
func (r *WaitlistRepository) FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	const query = `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE id = $1 AND deleted_at IS NULL`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

// FindByInquiry returns the most recent non-deleted entry matching the public
// status-check key.
func (r *WaitlistRepository) FindByInquiry(ctx context.Context, tenantID, parentEmail, childFirst, childLast string) (*models.WaitlistEntry, error) {
	const query = `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE tenant_id = $1 AND LOWER(parent_email) = LOWER($2)
			AND LOWER(child_first_name) = LOWER($3) AND LOWER(child_last_name) = LOWER($4)
			AND deleted_at IS NULL
		ORDER BY inquiry_date DESC LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, tenantID, parentEmail, childFirst, childLast); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find entry by inquiry: %w", err)
	}
	return &entry, nil
}

// List returns entries filtered by the provided criteria with a total count.
func (r *WaitlistRepository) List(ctx context.Context, filter models.WaitlistFilter) ([]models.WaitlistEntry, int, error) {
	base := `FROM waitlist_entries WHERE deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	if filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)+1))
		args = append(args, filter.TenantID)
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", len(args)+1))
		args = append(args, filter.Stage)
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("requested_program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(child_first_name) LIKE $%d OR LOWER(child_last_name) LIKE $%d OR LOWER(parent_name) LIKE $%d OR LOWER(parent_email) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"priority":     "priority",
		"inquiry_date": "inquiry_date",
		"stage":        "stage",
		"child_name":   "child_last_name",
		"created_at":   "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "inquiry_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT "+entryColumns+" %s ORDER BY %s %s LIMIT %d OFFSET %d",
		base+clause, orderBy, order, size, offset)

	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list waitlist entries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count waitlist entries: %w", err)
	}
	return entries, total, nil
}

// History returns the entry's stage trajectory in replay order.
func (r *WaitlistRepository) History(ctx context.Context, entryID string) ([]models.StageHistoryRecord, error) {
	const query = `SELECT id, entry_id, seq, from_stage, to_stage, actor_id, note, created_at
		FROM stage_history WHERE entry_id = $1 ORDER BY seq ASC`
	var records []models.StageHistoryRecord
	if err := r.db.SelectContext(ctx, &records, query, entryID); err != nil {
		return nil, fmt.Errorf("load stage history: %w", err)
	}
	return records, nil
}

// MetadataUpdate carries the bounded set of editable fields that never touch stage.
type MetadataUpdate struct {
	Priority           *int
	ChildFirstName     *string
	ChildLastName      *string
	ChildDOB           *time.Time
	RequestedProgram   *string
	RequestedStartDate *time.Time
	ParentName         *string
	ParentEmail        *string
	ParentPhone        *string
	ReferralSource     *string
	Notes              *string
}

// UpdateMetadata applies non-stage field edits to an entry.
func (r *WaitlistRepository) UpdateMetadata(ctx context.Context, id string, update MetadataUpdate) error {
	sets := []string{}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.ChildFirstName != nil {
		add("child_first_name", *update.ChildFirstName)
	}
	if update.ChildLastName != nil {
		add("child_last_name", *update.ChildLastName)
	}
	if update.ChildDOB != nil {
		add("child_dob", *update.ChildDOB)
	}
	if update.RequestedProgram != nil {
		add("requested_program", *update.RequestedProgram)
	}
	if update.RequestedStartDate != nil {
		add("requested_start_date", *update.RequestedStartDate)
	}
	if update.ParentName != nil {
		add("parent_name", *update.ParentName)
	}
	if update.ParentEmail != nil {
		add("parent_email", *update.ParentEmail)
	}
	if update.ParentPhone != nil {
		add("parent_phone", *update.ParentPhone)
	}
	if update.ReferralSource != nil {
		add("referral_source", *update.ReferralSource)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE waitlist_entries SET %s WHERE id = $1 AND deleted_at IS NULL", strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entry metadata: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// SoftDelete marks an entry deleted. Deleted entries reject all transitions.
func (r *WaitlistRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE waitlist_entries SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Transition performs one audited stage write: lock the entry row, re-validate
// the edge under the lock, apply the stage and field patch, and append the
// next history record — all in one transaction.
func (r *WaitlistRepository) Transition(ctx context.Context, params TransitionParams) (entry *models.WaitlistEntry, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entry, err = r.lockEntryTx(ctx, tx, params.EntryID)
	if err != nil {
		return nil, err
	}

	entry, err = r.transitionLockedTx(ctx, tx, entry, params)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return entry, nil
}

// BookTour books an entry onto a slot. The slot row is locked before counting
// seat-holding bookings, so two concurrent bookings of the last open seat
// serialise and the loser observes a full slot.
func (r *WaitlistRepository) BookTour(ctx context.Context, params BookTourParams) (entry *models.WaitlistEntry, slot *models.TourSlot, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slot = &models.TourSlot{}
	const slotQuery = `SELECT id, tenant_id, slot_date, start_time, end_time, max_families, guide_name,
		location, active, deleted_at, created_at, updated_at
		FROM tour_slots WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	if err = tx.GetContext(ctx, slot, slotQuery, params.SlotID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrSlotNotFound
		} else {
			err = fmt.Errorf("lock tour slot: %w", err)
		}
		return nil, nil, err
	}
	if !slot.Active {
		err = ErrSlotInactive
		return nil, nil, err
	}

	seatHolding := make([]string, 0, len(models.SeatHoldingStages()))
	for _, s := range models.SeatHoldingStages() {
		seatHolding = append(seatHolding, string(s))
	}
	const countQuery = `SELECT COUNT(*) FROM waitlist_entries
		WHERE tour_slot_id = $1 AND stage = ANY($2) AND deleted_at IS NULL`
	var booked int
	if err = tx.GetContext(ctx, &booked, countQuery, params.SlotID, pq.Array(seatHolding)); err != nil {
		err = fmt.Errorf("count slot bookings: %w", err)
		return nil, nil, err
	}
	if booked >= slot.MaxFamilies {
		err = ErrSlotFull
		return nil, nil, err
	}

	entry, err = r.lockEntryTx(ctx, tx, params.EntryID)
	if err != nil {
		return nil, nil, err
	}

	startsAt := slot.StartsAt()
	slotID := slot.ID
	note := fmt.Sprintf("tour booked for %s at %s", startsAt.Format("2006-01-02"), slot.StartTime)
	entry, err = r.transitionLockedTx(ctx, tx, entry, TransitionParams{
		EntryID: params.EntryID,
		To:      models.StageTourScheduled,
		ActorID: params.ActorID,
		Note:    note,
		Patch: EntryPatch{
			TourSlotID: &slotID,
			TourDate:   &startsAt,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit booking: %w", err)
	}
	return entry, slot, nil
}

// LockEntryTx exposes the entry row lock for service-orchestrated transactions
// that span additional resources, such as offer acceptance.
func (r *WaitlistRepository) LockEntryTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.WaitlistEntry, error) {
	return r.lockEntryTx(ctx, tx, id)
}

// TransitionTx applies an audited stage write to an already locked entry
// within the caller's transaction.
func (r *WaitlistRepository) TransitionTx(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, params TransitionParams) (*models.WaitlistEntry, error) {
	return r.transitionLockedTx(ctx, tx, entry, params)
}

func (r *WaitlistRepository) lockEntryTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.WaitlistEntry, error) {
	const query = `SELECT ` + entryColumns + ` FROM waitlist_entries WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	var entry models.WaitlistEntry
	if err := tx.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("lock waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *WaitlistRepository) transitionLockedTx(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, params TransitionParams) (*models.WaitlistEntry, error) {
	if !models.CanTransition(entry.Stage, params.To) {
		return nil, &StageConflictError{Current: entry.Stage, Allowed: models.AllowedNext(entry.Stage)}
	}

	now := time.Now().UTC()
	sets := []string{"stage = $2", "updated_at = $3"}
	args := []interface{}{entry.ID, params.To, now}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	patch := params.Patch
	if patch.TourSlotID != nil {
		add("tour_slot_id", *patch.TourSlotID)
	}
	if patch.TourDate != nil {
		add("tour_date", *patch.TourDate)
	}
	if patch.TourAttended != nil {
		add("tour_attended", *patch.TourAttended)
	}
	if patch.TourNotes != nil {
		add("tour_notes", *patch.TourNotes)
	}
	if patch.OfferedProgram != nil {
		add("offered_program", *patch.OfferedProgram)
	}
	if patch.OfferedStartDate != nil {
		add("offered_start_date", *patch.OfferedStartDate)
	}
	if patch.OfferExpiresAt != nil {
		add("offer_expires_at", *patch.OfferExpiresAt)
	}
	if patch.OfferResponse != nil {
		add("offer_response", *patch.OfferResponse)
	}
	if patch.OfferResponseAt != nil {
		add("offer_response_at", *patch.OfferResponseAt)
	}
	if patch.ConvertedApplicationID != nil {
		add("converted_application_id", *patch.ConvertedApplicationID)
	}

	query := fmt.Sprintf("UPDATE waitlist_entries SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update entry stage: %w", err)
	}

	var lastSeq int
	const seqQuery = `SELECT COALESCE(MAX(seq), 0) FROM stage_history WHERE entry_id = $1`
	if err := tx.GetContext(ctx, &lastSeq, seqQuery, entry.ID); err != nil {
		return nil, fmt.Errorf("read history seq: %w", err)
	}

	from := entry.Stage
	if err := r.insertHistoryTx(ctx, tx, entry.ID, lastSeq+1, &from, params.To, params.ActorID, params.Note); err != nil {
		return nil, err
	}

	updated := *entry
	updated.Stage = params.To
	updated.UpdatedAt = now
	applyPatch(&updated, patch)
	return &updated, nil
}

func (r *WaitlistRepository) insertHistoryTx(ctx context.Context, tx *sqlx.Tx, entryID string, seq int, from *models.Stage, to models.Stage, actorID *string, note string) error {
	const query = `INSERT INTO stage_history (id, entry_id, seq, from_stage, to_stage, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), entryID, seq, from, to, actorID, note, time.Now().UTC()); err != nil {
		return fmt.Errorf("append stage history: %w", err)
	}
	return nil
}

func applyPatch(entry *models.WaitlistEntry, patch EntryPatch) {
	if patch.TourSlotID != nil {
		entry.TourSlotID = patch.TourSlotID
	}
	if patch.TourDate != nil {
		entry.TourDate = patch.TourDate
	}
	if patch.TourAttended != nil {
		entry.TourAttended = patch.TourAttended
	}
	if patch.TourNotes != nil {
		entry.TourNotes = *patch.TourNotes
	}
	if patch.OfferedProgram != nil {
		entry.OfferedProgram = *patch.OfferedProgram
	}
	if patch.OfferedStartDate != nil {
		entry.OfferedStartDate = patch.OfferedStartDate
	}
	if patch.OfferExpiresAt != nil {
		entry.OfferExpiresAt = patch.OfferExpiresAt
	}
	if patch.OfferResponse != nil {
		entry.OfferResponse = patch.OfferResponse
	}
	if patch.OfferResponseAt != nil {
		entry.OfferResponseAt = patch.OfferResponseAt
	}
	if patch.ConvertedApplicationID != nil {
		entry.ConvertedApplicationID = patch.ConvertedApplicationID
	}
}
