package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telecare-scheduling/internal/slot"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Occupies reports whether an appointment in s holds its slot.
func (s Status) Occupies() bool {
	return s == StatusPending || s == StatusApproved
}

type Appointment struct {
	ID              uuid.UUID      `json:"id"`
	PatientID       uuid.UUID      `json:"patient_id"`
	ProviderID      uuid.UUID      `json:"provider_id"`
	RequestedAt     time.Time      `json:"requested_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	Reason          string         `json:"reason"`
	Notes           *string        `json:"notes,omitempty"`
	Status          Status         `json:"status"`
	DurationMinutes int            `json:"duration_minutes"`
	SourceWindowID  *uuid.UUID     `json:"source_window_id,omitempty"`
	Location        *slot.Location `json:"location,omitempty"`
	SlotDate        string         `json:"slot_date"`
	SlotStart       time.Time      `json:"slot_start"`
	SlotEnd         time.Time      `json:"slot_end"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Elapsed reports whether an approved appointment has run its course.
func (a Appointment) Elapsed(now time.Time) bool {
	return a.Status == StatusApproved && !a.SlotEnd.After(now)
}

// withDerivedStatus returns a with Status reading completed once an approved
// appointment's slot has ended, whether or not the sweep has persisted it.
func (a Appointment) withDerivedStatus(now time.Time) Appointment {
	if a.Elapsed(now) {
		a.Status = StatusCompleted
	}
	return a
}

func (a Appointment) booking() slot.Booking {
	return slot.Booking{
		Start:    a.SlotStart,
		End:      a.SlotEnd,
		Rejected: a.Status == StatusRejected,
	}
}

// Change is a compare-and-set status transition plus the fields it stamps.
type Change struct {
	To         Status
	ApprovedAt *time.Time
	Notes      *string
	// Reslot moves the occupied interval; set when an approval renegotiates
	// the time.
	Reslot *Reslot
}

type Reslot struct {
	Date  string
	Start time.Time
	End   time.Time
}
