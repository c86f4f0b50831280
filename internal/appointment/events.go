package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRequested EventType = "appointment.requested"
	EventApproved  EventType = "appointment.approved"
	EventRejected  EventType = "appointment.rejected"
	EventCompleted EventType = "appointment.completed"
)

// Event is emitted once per successful transition, after the store commits.
type Event struct {
	Type        EventType
	Appointment Appointment
	ActorID     uuid.UUID
	OccurredAt  time.Time
}

// Publisher delivers events to collaborators. Implementations must not block
// on delivery or report delivery failures back to the ledger.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}
