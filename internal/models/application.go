package models

import "time"

// ApplicationStatus values for newly converted enrollment applications.
const (
	ApplicationStatusSubmitted = "SUBMITTED"
)

// EnrollmentApplication is the record produced when an accepted offer converts.
// One application exists per waitlist entry at most; the unique entry reference
// is what makes conversion idempotent at the store level.
type EnrollmentApplication struct {
	ID                 string     `db:"id" json:"id"`
	EntryID            string     `db:"entry_id" json:"entry_id"`
	TenantID           string     `db:"tenant_id" json:"tenant_id"`
	EnrollmentPeriodID string     `db:"enrollment_period_id" json:"enrollment_period_id"`
	ChildFirstName     string     `db:"child_first_name" json:"child_first_name"`
	ChildLastName      string     `db:"child_last_name" json:"child_last_name"`
	ChildDOB           *time.Time `db:"child_dob" json:"child_dob,omitempty"`
	RequestedProgram   string     `db:"requested_program" json:"requested_program"`
	RequestedStartDate *time.Time `db:"requested_start_date" json:"requested_start_date,omitempty"`
	Status             string     `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// ApplicationGuardian is the guardian record derived from the entry's parent fields.
type ApplicationGuardian struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	Relationship  string    `db:"relationship" json:"relationship"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
