package models

import "time"

// TourSlot is a capacity-limited, bookable time window for family tours.
type TourSlot struct {
	ID          string     `db:"id" json:"id"`
	TenantID    string     `db:"tenant_id" json:"tenant_id"`
	SlotDate    time.Time  `db:"slot_date" json:"slot_date"`
	StartTime   string     `db:"start_time" json:"start_time"`
	EndTime     string     `db:"end_time" json:"end_time"`
	MaxFamilies int        `db:"max_families" json:"max_families"`
	GuideName   string     `db:"guide_name" json:"guide_name,omitempty"`
	Location    string     `db:"location" json:"location,omitempty"`
	Active      bool       `db:"active" json:"active"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TourSlotWithBookings enriches a slot with its derived booking count.
type TourSlotWithBookings struct {
	TourSlot
	BookedCount    int `db:"booked_count" json:"booked_count"`
	SpotsRemaining int `json:"spots_remaining"`
}

// TourSlotFilter captures listing criteria for staff slot views.
type TourSlotFilter struct {
	TenantID string
	DateFrom *time.Time
	DateTo   *time.Time
	Active   *bool
	Page     int
	PageSize int
}

// StartsAt combines the slot date with its start time of day.
func (s TourSlot) StartsAt() time.Time {
	t, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return s.SlotDate
	}
	return time.Date(s.SlotDate.Year(), s.SlotDate.Month(), s.SlotDate.Day(),
		t.Hour(), t.Minute(), 0, 0, time.UTC)
}
