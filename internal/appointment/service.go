package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telecare-scheduling/internal/redis"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

var (
	ErrWrongState          = errors.New("appointment is not in a state that allows this transition")
	ErrForbidden           = errors.New("caller may not act on this appointment")
	ErrMissingReason       = errors.New("reason is required")
	ErrMissingParticipant  = errors.New("patient_id and provider_id are required")
	ErrDateInPast          = errors.New("requested date is in the past")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrNotProvider         = errors.New("appointments can only be booked with providers")
	ErrOutsideAvailability = errors.New("time is outside the provider's availability")
	ErrUnalignedTime       = errors.New("approved time must fall on a whole minute")
)

const (
	defaultRejectNotes = "No reason provided"
	defaultPageSize    = 20
	maxPageSize        = 100
)

// WindowLister is the slice of the availability store the ledger reads.
type WindowLister interface {
	ListActiveWindows(ctx context.Context, providerID uuid.UUID) ([]availability.Window, error)
}

type Service struct {
	repo      Repository
	windows   WindowLister
	users     identity.Directory
	locker    redisclient.Locker
	publisher Publisher
	metrics   *metrics.Metrics
	loc       *time.Location
	policy    slot.Policy
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }
func WithPolicy(p slot.Policy) Option { return func(s *Service) { s.policy = p } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func NewService(repo Repository, windows WindowLister, users identity.Directory, locker redisclient.Locker, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		windows:   windows,
		users:     users,
		locker:    locker,
		publisher: nopPublisher{},
		loc:       time.UTC,
		policy:    slot.PolicyStandard,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "ledger").Logger()
	return s
}

type BookingRequest struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	// Date selects the calendar day in the clinic clock; the time of day is
	// ignored and assigned by the allocator.
	Date   time.Time
	Reason string
}

// RequestAppointment allocates the provider's next free slot on req.Date and
// records a pending appointment. Allocation and commit run under the
// provider's day lock, and the store rejects overlaps on its own; a rejected
// commit is re-allocated once before ErrSlotUnavailable is returned.
func (s *Service) RequestAppointment(ctx context.Context, caller identity.Caller, req BookingRequest) (*Appointment, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, ErrMissingParticipant
	}
	if req.Reason == "" {
		return nil, ErrMissingReason
	}
	if !caller.IsAdmin() && caller.ID != req.PatientID {
		return nil, ErrForbidden
	}

	if err := s.checkParticipants(ctx, req.PatientID, req.ProviderID); err != nil {
		return nil, err
	}

	date := slot.DateOf(req.Date, s.loc)
	if date.Before(slot.DateOf(s.now(), s.loc)) {
		return nil, ErrDateInPast
	}

	var created *Appointment
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			s.metrics.AllocationRetry()
			s.log.Debug().
				Str("provider_id", req.ProviderID.String()).
				Str("date", date.Format(time.DateOnly)).
				Msg("slot taken at commit, re-allocating")
		}

		err = s.locker.WithDayLock(ctx, req.ProviderID, date, func(lockCtx context.Context) error {
			appt, err := s.allocateAndCommit(lockCtx, req, date)
			if err != nil {
				return err
			}
			created = appt
			return nil
		})
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
		}
		if !errors.Is(err, ErrSlotUnavailable) {
			break
		}
	}

	if err != nil {
		s.metrics.BookingOutcome(outcomeOf(err))
		return nil, err
	}

	s.metrics.BookingOutcome("booked")
	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("slot_start", created.SlotStart).
		Msg("appointment requested")

	s.publish(ctx, EventRequested, *created, caller.ID)
	return created, nil
}

func (s *Service) checkParticipants(ctx context.Context, patientID, providerID uuid.UUID) error {
	if _, err := s.users.Resolve(ctx, patientID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("load patient: %w", err)
	}

	provider, err := s.users.Resolve(ctx, providerID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("load provider: %w", err)
	}
	if provider.Role != identity.RoleProvider {
		return ErrNotProvider
	}
	return nil
}

func (s *Service) allocateAndCommit(ctx context.Context, req BookingRequest, date time.Time) (*Appointment, error) {
	sl, err := s.allocate(ctx, req.ProviderID, date)
	if err != nil {
		return nil, err
	}

	windowID := sl.WindowID
	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		RequestedAt:     sl.Start,
		Reason:          req.Reason,
		Status:          StatusPending,
		DurationMinutes: int(slot.DefaultDuration / time.Minute),
		SourceWindowID:  &windowID,
		SlotDate:        date.Format(time.DateOnly),
		SlotStart:       sl.Start,
		SlotEnd:         sl.End,
	}
	if sl.Location != nil {
		snapshot := *sl.Location
		appt.Location = &snapshot
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return created, nil
}

func (s *Service) allocate(ctx context.Context, providerID uuid.UUID, date time.Time) (slot.Slot, error) {
	windows, err := s.windows.ListActiveWindows(ctx, providerID)
	if err != nil {
		return slot.Slot{}, fmt.Errorf("load windows: %w", err)
	}

	existing, err := s.repo.ListByProviderOnDate(ctx, providerID, date.Format(time.DateOnly))
	if err != nil {
		return slot.Slot{}, fmt.Errorf("load occupancy: %w", err)
	}
	bookings := make([]slot.Booking, 0, len(existing))
	for _, a := range existing {
		bookings = append(bookings, a.booking())
	}

	sl, err := slot.Allocate(slot.Request{
		Windows:   availability.SlotWindows(windows),
		Bookings:  bookings,
		Date:      date,
		Duration:  slot.DefaultDuration,
		Policy:    s.policy,
		NotBefore: s.now(),
	})
	if err != nil {
		return slot.Slot{}, err
	}
	return sl, nil
}

// NextSlot previews the slot RequestAppointment would assign right now,
// without reserving it.
func (s *Service) NextSlot(ctx context.Context, providerID uuid.UUID, date time.Time) (slot.Slot, error) {
	day := slot.DateOf(date, s.loc)
	if day.Before(slot.DateOf(s.now(), s.loc)) {
		return slot.Slot{}, ErrDateInPast
	}
	return s.allocate(ctx, providerID, day)
}

type Approval struct {
	// ApprovedAt renegotiates the start time when it differs from the
	// requested one. Nil keeps the requested time.
	ApprovedAt *time.Time
	Notes      *string
}

func (s *Service) Approve(ctx context.Context, caller identity.Caller, id uuid.UUID, in Approval) (*Appointment, error) {
	appt, err := s.ownedPending(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	approvedAt := appt.RequestedAt
	if in.ApprovedAt != nil {
		approvedAt = in.ApprovedAt.In(s.loc)
	}
	change := Change{To: StatusApproved, ApprovedAt: &approvedAt, Notes: in.Notes}

	var updated *Appointment
	switch {
	case approvedAt.Equal(appt.SlotStart):
		// An appointment whose slot has run out can only be approved at a new time.
		if !appt.SlotEnd.After(s.now()) {
			return nil, ErrDateInPast
		}
		updated, err = s.repo.Transition(ctx, id, StatusPending, change)
	case !approvedAt.Equal(approvedAt.Truncate(time.Minute)):
		return nil, ErrUnalignedTime
	default:
		updated, err = s.reslotAndApprove(ctx, *appt, approvedAt, change)
	}
	if err != nil {
		if errors.Is(err, ErrWrongState) || errors.Is(err, ErrSlotUnavailable) ||
			errors.Is(err, ErrOutsideAvailability) || errors.Is(err, ErrDateInPast) {
			return nil, err
		}
		return nil, fmt.Errorf("approve appointment: %w", err)
	}

	s.metrics.Transition(string(StatusApproved))
	s.log.Info().
		Str("appointment_id", id.String()).
		Time("approved_at", approvedAt).
		Msg("appointment approved")

	s.publish(ctx, EventApproved, *updated, caller.ID)
	return updated, nil
}

func (s *Service) reslotAndApprove(ctx context.Context, appt Appointment, start time.Time, change Change) (*Appointment, error) {
	if start.Before(s.now()) {
		return nil, ErrDateInPast
	}

	windows, err := s.windows.ListActiveWindows(ctx, appt.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if _, ok := slot.Fits(availability.SlotWindows(windows), start, appt.Duration()); !ok {
		return nil, ErrOutsideAvailability
	}

	date := slot.DateOf(start, s.loc)
	change.Reslot = &Reslot{
		Date:  date.Format(time.DateOnly),
		Start: start,
		End:   start.Add(appt.Duration()),
	}

	var updated *Appointment
	err = s.locker.WithDayLock(ctx, appt.ProviderID, date, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.Transition(lockCtx, appt.ID, StatusPending, change)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	return updated, err
}

func (s *Service) Reject(ctx context.Context, caller identity.Caller, id uuid.UUID, reason string) (*Appointment, error) {
	if _, err := s.ownedPending(ctx, caller, id); err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = defaultRejectNotes
	}

	updated, err := s.repo.Transition(ctx, id, StatusPending, Change{To: StatusRejected, Notes: &notes})
	if err != nil {
		if errors.Is(err, ErrWrongState) {
			return nil, err
		}
		return nil, fmt.Errorf("reject appointment: %w", err)
	}

	s.metrics.Transition(string(StatusRejected))
	s.log.Info().Str("appointment_id", id.String()).Msg("appointment rejected")

	s.publish(ctx, EventRejected, *updated, caller.ID)
	return updated, nil
}

func (s *Service) ownedPending(ctx context.Context, caller identity.Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !caller.IsProvider() || caller.ID != appt.ProviderID {
		return nil, ErrForbidden
	}
	if appt.Status != StatusPending {
		return nil, ErrWrongState
	}
	return appt, nil
}

// Get returns an appointment visible to the caller: its patient, its
// provider, or an admin.
func (s *Service) Get(ctx context.Context, caller identity.Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !caller.IsAdmin() && caller.ID != appt.PatientID && caller.ID != appt.ProviderID {
		return nil, ErrForbidden
	}

	derived := appt.withDerivedStatus(s.now())
	return &derived, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	list, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return s.derive(list), nil
}

func (s *Service) ListForProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	list, err := s.repo.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return s.derive(list), nil
}

func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	list, err := s.repo.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.derive(list), nil
}

// Lookup returns the stored appointment without caller checks or derived
// status. Used by collaborators inside the core.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// CompleteElapsed persists the completed status for approved appointments
// whose slot has ended. It is intended to be called by the worker
// periodically; reads derive the same status in between runs.
func (s *Service) CompleteElapsed(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.repo.FindElapsedApproved(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		updated, err := s.repo.Transition(ctx, appt.ID, StatusApproved, Change{To: StatusCompleted})
		if err != nil {
			if !errors.Is(err, ErrWrongState) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete appointment")
			}
			continue
		}
		completed++
		s.metrics.Transition(string(StatusCompleted))
		s.publish(ctx, EventCompleted, *updated, uuid.Nil)
	}

	return completed, nil
}

func (s *Service) derive(list []Appointment) []Appointment {
	now := s.now()
	for i := range list {
		list[i] = list[i].withDerivedStatus(now)
	}
	return list
}

func (s *Service) publish(ctx context.Context, t EventType, appt Appointment, actor uuid.UUID) {
	s.publisher.Publish(ctx, Event{
		Type:        t,
		Appointment: appt,
		ActorID:     actor,
		OccurredAt:  s.now(),
	})
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, slot.ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, slot.ErrWindowExhausted):
		return "window_exhausted"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	default:
		return "error"
	}
}
