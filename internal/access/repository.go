package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrGrantNotFound = errors.New("access grant not found")

type Repository interface {
	// Upsert writes g keyed by (patient, provider, appointment).
	Upsert(ctx context.Context, g Grant) (*Grant, error)
	Get(ctx context.Context, k Key) (*Grant, error)
	// ListForAppointment returns every grant the patient issued for one appointment.
	ListForAppointment(ctx context.Context, patientID, appointmentID uuid.UUID) ([]Grant, error)
}
