package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telecare-scheduling/internal/slot"
)

type SetWindowRequest struct {
	DayOfWeek *int           `json:"day_of_week"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
	Location  *slot.Location `json:"location,omitempty"`
}

type UpdateWindowRequest struct {
	StartTime *string        `json:"start_time,omitempty"`
	EndTime   *string        `json:"end_time,omitempty"`
	Location  *slot.Location `json:"location,omitempty"`
}

type SlotResponse struct {
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	WindowID uuid.UUID      `json:"window_id"`
	Location *slot.Location `json:"location,omitempty"`
}

type CreateAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	// PatientID defaults to the caller; only admins may book for someone else.
	PatientID string `json:"patient_id,omitempty"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
}

type ApproveRequest struct {
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AccessRequest struct {
	ProviderID    string `json:"provider_id"`
	AppointmentID string `json:"appointment_id"`
}

type AccessCheckResponse struct {
	HasAccess bool `json:"has_access"`
}
