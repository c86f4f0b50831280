package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/activity"
	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/mail"
	"github.com/hackgods/telecare-scheduling/internal/metrics"
)

const deliveryTimeout = 15 * time.Second

// Dispatcher fans ledger events out to the mail and activity collaborators.
// Delivery runs in the background; failures are logged and dropped.
type Dispatcher struct {
	users      identity.Directory
	mailer     mail.Mailer
	activities activity.Recorder
	metrics    *metrics.Metrics
	log        zerolog.Logger
	wg         sync.WaitGroup
}

func NewDispatcher(users identity.Directory, mailer mail.Mailer, activities activity.Recorder, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		users:      users,
		mailer:     mailer,
		activities: activities,
		metrics:    m,
		log:        log.With().Str("component", "notify").Logger(),
	}
}

func (d *Dispatcher) Publish(ctx context.Context, ev appointment.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		// The request that produced the event may finish first.
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		d.deliver(deliverCtx, ev)
	}()
}

// Wait blocks until every published event has been delivered or dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ev appointment.Event) {
	a := ev.Appointment
	when := a.SlotStart.Format("Mon 2 Jan 2006 15:04")
	meta := map[string]any{
		"appointment_id": a.ID.String(),
		"status":         string(a.Status),
		"slot_start":     a.SlotStart,
	}

	switch ev.Type {
	case appointment.EventRequested:
		d.mail(ctx, a.ProviderID, "New appointment request",
			fmt.Sprintf("A patient requested an appointment on %s.\nReason: %s", when, a.Reason))
		d.record(ctx, a.PatientID, "Appointment requested", "Requested an appointment for "+when, meta)
		d.record(ctx, a.ProviderID, "New appointment request", "A patient requested "+when, meta)

	case appointment.EventApproved:
		d.mail(ctx, a.PatientID, "Appointment approved",
			fmt.Sprintf("Your appointment on %s has been approved.", when))
		d.record(ctx, a.ProviderID, "Appointment approved", "Approved the appointment on "+when, meta)

	case appointment.EventRejected:
		body := fmt.Sprintf("Your appointment request for %s was declined.", when)
		if a.Notes != nil {
			body += "\nReason: " + *a.Notes
		}
		d.mail(ctx, a.PatientID, "Appointment declined", body)
		d.record(ctx, a.ProviderID, "Appointment rejected", "Rejected the appointment on "+when, meta)

	case appointment.EventCompleted:
		d.record(ctx, a.PatientID, "Appointment completed", "Appointment on "+when+" completed", meta)
		d.record(ctx, a.ProviderID, "Appointment completed", "Appointment on "+when+" completed", meta)

	default:
		d.log.Warn().Str("event", string(ev.Type)).Msg("unhandled event type")
	}
}

func (d *Dispatcher) mail(ctx context.Context, userID uuid.UUID, subject, body string) {
	u, err := d.users.Resolve(ctx, userID)
	if err != nil {
		d.fail("mail", err, userID)
		return
	}
	if err := d.mailer.Notify(ctx, u.Email, subject, body); err != nil {
		d.fail("mail", err, userID)
	}
}

func (d *Dispatcher) record(ctx context.Context, subjectID uuid.UUID, title, description string, meta map[string]any) {
	if err := d.activities.Record(ctx, subjectID, title, description, meta); err != nil {
		d.fail("activity", err, subjectID)
	}
}

func (d *Dispatcher) fail(channel string, err error, userID uuid.UUID) {
	d.metrics.NotificationFailure(channel)
	d.log.Error().Err(err).Str("channel", channel).Str("user_id", userID.String()).Msg("notification dropped")
}
