package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/littleoaks/admissions-api/internal/models"
)

// ErrApplicationExists signals that an entry was already converted.
var ErrApplicationExists = errors.New("application already exists for this entry")

// ApplicationRepository writes the enrollment application produced when an
// accepted offer converts. The insert runs inside the caller's transaction so
// the stage write and the conversion commit or roll back together.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// CreateTx inserts the application and its guardian record within tx. The
// unique constraint on entry_id makes a second conversion attempt fail cleanly.
func (r *ApplicationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, app *models.EnrollmentApplication, guardian *models.ApplicationGuardian) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.Status = models.ApplicationStatusSubmitted
	app.CreatedAt = time.Now().UTC()

	const appQuery = `INSERT INTO enrollment_applications
			(id, entry_id, tenant_id, enrollment_period_id, child_first_name, child_last_name,
			 child_dob, requested_program, requested_start_date, status, created_at)
		VALUES (:id, :entry_id, :tenant_id, :enrollment_period_id, :child_first_name, :child_last_name,
			 :child_dob, :requested_program, :requested_start_date, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, appQuery, app); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrApplicationExists
		}
		return fmt.Errorf("create enrollment application: %w", err)
	}

	guardian.ID = uuid.NewString()
	guardian.ApplicationID = app.ID
	guardian.CreatedAt = app.CreatedAt

	const guardianQuery = `INSERT INTO application_guardians
			(id, application_id, full_name, email, phone, relationship, created_at)
		VALUES (:id, :application_id, :full_name, :email, :phone, :relationship, :created_at)`
	if _, err := tx.NamedExecContext(ctx, guardianQuery, guardian); err != nil {
		return fmt.Errorf("create application guardian: %w", err)
	}
	return nil
}

// FindByEntryID returns the application converted from the given entry, if any.
func (r *ApplicationRepository) FindByEntryID(ctx context.Context, entryID string) (*models.EnrollmentApplication, error) {
	const query = `SELECT id, entry_id, tenant_id, enrollment_period_id, child_first_name, child_last_name,
			child_dob, requested_program, requested_start_date, status, created_at
		FROM enrollment_applications WHERE entry_id = $1`
	var app models.EnrollmentApplication
	if err := r.db.GetContext(ctx, &app, query, entryID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by entry: %w", err)
	}
	return &app, nil
}
