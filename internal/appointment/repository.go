package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotUnavailable means the store refused the commit because another
	// pending or approved appointment overlaps the slot.
	ErrSlotUnavailable = errors.New("slot was taken by a concurrent booking")
)

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	// Create inserts a pending appointment atomically with the overlap check.
	Create(ctx context.Context, a Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Occupancy for one provider's calendar day, every status included.
	ListByProviderOnDate(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error)

	// Ordered by requested_at descending.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error)
	// Ordered by created_at descending.
	ListAll(ctx context.Context, limit, offset int) ([]Appointment, error)

	// Transition applies c only if the stored status is still from. It
	// returns ErrWrongState when the appointment exists in another status.
	Transition(ctx context.Context, id uuid.UUID, from Status, c Change) (*Appointment, error)

	// Completion sweep
	FindElapsedApproved(ctx context.Context, now time.Time) ([]Appointment, error)
}
