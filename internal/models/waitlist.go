package models

import "time"

// Stage represents the discrete state of a waitlist entry within the admissions funnel.
type Stage string

// Funnel stages. Enrolled is terminal.
const (
	StageInquiry       Stage = "inquiry"
	StageWaitlisted    Stage = "waitlisted"
	StageTourScheduled Stage = "tour_scheduled"
	StageTourCompleted Stage = "tour_completed"
	StageOffered       Stage = "offered"
	StageAccepted      Stage = "accepted"
	StageEnrolled      Stage = "enrolled"
	StageDeclined      Stage = "declined"
	StageWithdrawn     Stage = "withdrawn"
)

// OfferResponse values recorded when an offer is resolved.
const (
	OfferResponseAccepted = "accepted"
	OfferResponseDeclined = "declined"
)

// stageTransitions is the allowed-edge adjacency map. The full graph lives here as
// data so it can be inspected and tested as one unit.
var stageTransitions = map[Stage][]Stage{
	StageInquiry:       {StageWaitlisted, StageWithdrawn},
	StageWaitlisted:    {StageTourScheduled, StageOffered, StageWithdrawn},
	StageTourScheduled: {StageTourCompleted, StageWaitlisted, StageWithdrawn},
	StageTourCompleted: {StageOffered, StageWaitlisted, StageWithdrawn},
	StageOffered:       {StageAccepted, StageDeclined, StageWithdrawn},
	StageAccepted:      {StageEnrolled, StageWithdrawn},
	StageEnrolled:      {},
	StageDeclined:      {StageWaitlisted},
	StageWithdrawn:     {StageInquiry},
}

// seatHoldingStages count against a tour slot's capacity.
var seatHoldingStages = map[Stage]struct{}{
	StageTourScheduled: {},
	StageTourCompleted: {},
	StageOffered:       {},
	StageAccepted:      {},
	StageEnrolled:      {},
}

// AllStages lists every stage in funnel order.
func AllStages() []Stage {
	return []Stage{
		StageInquiry, StageWaitlisted, StageTourScheduled, StageTourCompleted,
		StageOffered, StageAccepted, StageEnrolled, StageDeclined, StageWithdrawn,
	}
}

// IsValidStage reports whether s is a defined stage.
func IsValidStage(s Stage) bool {
	_, ok := stageTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the allowed successor stages for the given stage.
func AllowedNext(from Stage) []Stage {
	next := stageTransitions[from]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// IsSeatHolding reports whether the stage holds a seat on a booked tour slot.
func IsSeatHolding(s Stage) bool {
	_, ok := seatHoldingStages[s]
	return ok
}

// SeatHoldingStages returns the set of stages that count against slot capacity.
func SeatHoldingStages() []Stage {
	return []Stage{StageTourScheduled, StageTourCompleted, StageOffered, StageAccepted, StageEnrolled}
}

// ActiveStages returns the stages that count toward the active pipeline total
// (everything that is not terminal, declined or withdrawn).
func ActiveStages() []Stage {
	return []Stage{
		StageInquiry, StageWaitlisted, StageTourScheduled, StageTourCompleted,
		StageOffered, StageAccepted,
	}
}

// WaitlistEntry is one prospective (child, family) admissions journey.
type WaitlistEntry struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Stage    Stage  `db:"stage" json:"stage"`
	Priority int    `db:"priority" json:"priority"`

	ChildFirstName string     `db:"child_first_name" json:"child_first_name"`
	ChildLastName  string     `db:"child_last_name" json:"child_last_name"`
	ChildDOB       *time.Time `db:"child_dob" json:"child_dob,omitempty"`

	RequestedProgram   string     `db:"requested_program" json:"requested_program"`
	RequestedStartDate *time.Time `db:"requested_start_date" json:"requested_start_date,omitempty"`

	ParentName     string `db:"parent_name" json:"parent_name"`
	ParentEmail    string `db:"parent_email" json:"parent_email"`
	ParentPhone    string `db:"parent_phone" json:"parent_phone,omitempty"`
	ReferralSource string `db:"referral_source" json:"referral_source,omitempty"`

	TourSlotID   *string    `db:"tour_slot_id" json:"tour_slot_id,omitempty"`
	TourDate     *time.Time `db:"tour_date" json:"tour_date,omitempty"`
	TourAttended *bool      `db:"tour_attended" json:"tour_attended,omitempty"`
	TourNotes    string     `db:"tour_notes" json:"tour_notes,omitempty"`

	OfferedProgram   string     `db:"offered_program" json:"offered_program,omitempty"`
	OfferedStartDate *time.Time `db:"offered_start_date" json:"offered_start_date,omitempty"`
	OfferExpiresAt   *time.Time `db:"offer_expires_at" json:"offer_expires_at,omitempty"`
	OfferResponse    *string    `db:"offer_response" json:"offer_response,omitempty"`
	OfferResponseAt  *time.Time `db:"offer_response_at" json:"offer_response_at,omitempty"`

	ConvertedApplicationID *string `db:"converted_application_id" json:"converted_application_id,omitempty"`

	InquiryDate time.Time  `db:"inquiry_date" json:"inquiry_date"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// StageHistoryRecord is one immutable audit record per stage write.
type StageHistoryRecord struct {
	ID        string    `db:"id" json:"id"`
	EntryID   string    `db:"entry_id" json:"entry_id"`
	Seq       int       `db:"seq" json:"seq"`
	FromStage *Stage    `db:"from_stage" json:"from_stage,omitempty"`
	ToStage   Stage     `db:"to_stage" json:"to_stage"`
	ActorID   *string   `db:"actor_id" json:"actor_id,omitempty"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WaitlistFilter captures listing criteria for waitlist entries.
type WaitlistFilter struct {
	TenantID  string
	Stage     Stage
	Program   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EntryWithHistory bundles an entry with its ordered stage trajectory.
type EntryWithHistory struct {
	Entry   WaitlistEntry        `json:"entry"`
	History []StageHistoryRecord `json:"history"`
}

// InquiryStatus is the sanitized view returned to unauthenticated families.
type InquiryStatus struct {
	Stage          Stage      `json:"stage"`
	ChildFirstName string     `json:"child_first_name"`
	ChildLastName  string     `json:"child_last_name"`
	InquiryDate    time.Time  `json:"inquiry_date"`
	DaysWaiting    int        `json:"days_waiting"`
	TourDate       *time.Time `json:"tour_date,omitempty"`
	OfferedProgram string     `json:"offered_program,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
}
