package access

import (
	"time"

	"github.com/google/uuid"
)

// Grant is a patient's consent for one provider to read their reports in the
// context of one appointment.
type Grant struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	AccessGranted bool       `json:"access_granted"`
	GrantedAt     *time.Time `json:"granted_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Key struct {
	PatientID     uuid.UUID
	ProviderID    uuid.UUID
	AppointmentID uuid.UUID
}

func (g Grant) Key() Key {
	return Key{PatientID: g.PatientID, ProviderID: g.ProviderID, AppointmentID: g.AppointmentID}
}
