package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telecare-scheduling/internal/availability"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	redisclient "github.com/hackgods/telecare-scheduling/internal/redis"
	"github.com/hackgods/telecare-scheduling/internal/slot"
)

// 2026-10-19 is a Monday; the clock starts on the Sunday before.
var (
	sunday = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

// passthroughLocker provides no mutual exclusion, leaving the store as the
// only guard against double booking.
type passthroughLocker struct{}

func (passthroughLocker) WithDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	windows  *availability.Service
	users    *identity.MemoryDirectory
	clock    *fakeClock
	events   *eventLog
	provider identity.Caller
	admin    identity.Caller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		repo:     NewMemoryRepository(),
		windows:  availability.NewService(availability.NewMemoryRepository(), zerolog.Nop()),
		users:    identity.NewMemoryDirectory(),
		clock:    &fakeClock{now: sunday},
		events:   &eventLog{},
		provider: identity.Caller{ID: uuid.New(), Role: identity.RoleProvider},
		admin:    identity.Caller{ID: uuid.New(), Role: identity.RoleAdmin},
	}
	f.users.Put(identity.User{ID: f.provider.ID, Role: identity.RoleProvider, DisplayName: "Dr. Who", Email: "who@clinic.test"})
	f.users.Put(identity.User{ID: f.admin.ID, Role: identity.RoleAdmin, DisplayName: "Admin", Email: "admin@clinic.test"})

	all := append([]Option{
		WithClock(f.clock.Now),
		WithPublisher(f.events),
	}, opts...)
	f.svc = NewService(f.repo, f.windows, f.users, redisclient.NewLocalLocker(), all...)
	return f
}

func (f *fixture) patient(t *testing.T) identity.Caller {
	t.Helper()
	c := identity.Caller{ID: uuid.New(), Role: identity.RolePatient}
	f.users.Put(identity.User{ID: c.ID, Role: identity.RolePatient, DisplayName: "Patient", Email: c.ID.String() + "@mail.test"})
	return c
}

func (f *fixture) window(t *testing.T, day int, start, end string) *availability.Window {
	t.Helper()
	w, err := f.windows.SetWindow(context.Background(), f.provider.ID, day, start, end,
		&slot.Location{Address: "4 Harbour Lane", Latitude: 6.93, Longitude: 79.85})
	require.NoError(t, err)
	return w
}

func (f *fixture) book(p identity.Caller, date time.Time) (*Appointment, error) {
	return f.svc.RequestAppointment(context.Background(), p, BookingRequest{
		PatientID:  p.ID,
		ProviderID: f.provider.ID,
		Date:       date,
		Reason:     "itchy rash",
	})
}

func clock(t *testing.T, day time.Time, hhmm string) time.Time {
	t.Helper()
	c, err := slot.ParseClock(hhmm)
	require.NoError(t, err)
	return c.On(day)
}

func TestRequestAppointment_MondayScenario(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "10:00")

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:00"), a.SlotStart)
	assert.Equal(t, clock(t, monday, "09:30"), a.SlotEnd)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, 30, a.DurationMinutes)
	assert.Equal(t, "2026-10-19", a.SlotDate)
	require.NotNil(t, a.Location)
	assert.Equal(t, "4 Harbour Lane", a.Location.Address)

	b, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:30"), b.SlotStart)
	assert.Equal(t, clock(t, monday, "10:00"), b.SlotEnd)

	_, err = f.book(f.patient(t), monday)
	assert.ErrorIs(t, err, slot.ErrWindowExhausted)

	_, err = f.book(f.patient(t), monday.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, slot.ErrNoAvailability)
}

func TestRequestAppointment_AfterRejection(t *testing.T) {
	run := func(t *testing.T, policy slot.Policy) (*Appointment, error) {
		f := newFixture(t, WithPolicy(policy))
		f.window(t, 1, "09:00", "10:00")

		a, err := f.book(f.patient(t), monday)
		require.NoError(t, err)
		_, err = f.book(f.patient(t), monday)
		require.NoError(t, err)

		_, err = f.svc.Reject(context.Background(), f.provider, a.ID, "double booked")
		require.NoError(t, err)

		return f.book(f.patient(t), monday)
	}

	t.Run("standard policy frees the rejected slot", func(t *testing.T) {
		d, err := run(t, slot.PolicyStandard)
		require.NoError(t, err)
		assert.Equal(t, clock(t, monday, "09:00"), d.SlotStart)
	})

	t.Run("legacy policy keeps counting the rejected booking", func(t *testing.T) {
		_, err := run(t, slot.PolicyLegacy)
		assert.ErrorIs(t, err, slot.ErrWindowExhausted)
	})
}

func assertNoOverlap(t *testing.T, booked []*Appointment) {
	t.Helper()
	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			a, b := booked[i], booked[j]
			overlap := a.SlotStart.Before(b.SlotEnd) && b.SlotStart.Before(a.SlotEnd)
			assert.False(t, overlap, "%s-%s overlaps %s-%s", a.SlotStart, a.SlotEnd, b.SlotStart, b.SlotEnd)
		}
	}
}

func concurrentBookings(t *testing.T, f *fixture, n int) ([]*Appointment, []error) {
	t.Helper()

	patients := make([]identity.Caller, n)
	for i := range patients {
		patients[i] = f.patient(t)
	}

	var mu sync.Mutex
	var booked []*Appointment
	var failures []error

	var g errgroup.Group
	for _, p := range patients {
		g.Go(func() error {
			a, err := f.book(p, monday)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return nil
			}
			booked = append(booked, a)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return booked, failures
}

func TestRequestAppointment_ConcurrentNeverOverlaps(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")

	booked, failures := concurrentBookings(t, f, 24)

	assert.Len(t, booked, 6)
	assertNoOverlap(t, booked)
	for _, err := range failures {
		assert.ErrorIs(t, err, slot.ErrWindowExhausted)
	}
}

func TestRequestAppointment_StoreConstraintWithoutLock(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = passthroughLocker{}
	f.window(t, 1, "09:00", "12:00")

	booked, failures := concurrentBookings(t, f, 24)

	assert.LessOrEqual(t, len(booked), 6)
	assert.NotEmpty(t, booked)
	assertNoOverlap(t, booked)
	for _, err := range failures {
		capacity := errors.Is(err, slot.ErrWindowExhausted) || errors.Is(err, ErrSlotUnavailable)
		assert.True(t, capacity, "unexpected error: %v", err)
	}
}

type conflictOnce struct {
	*MemoryRepository
	mu    sync.Mutex
	fired bool
}

func (r *conflictOnce) Create(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	if !r.fired {
		r.fired = true
		r.mu.Unlock()
		return nil, ErrSlotUnavailable
	}
	r.mu.Unlock()
	return r.MemoryRepository.Create(ctx, a)
}

func TestRequestAppointment_RetriesOnceAfterConflict(t *testing.T) {
	f := newFixture(t)
	f.svc.repo = &conflictOnce{MemoryRepository: f.repo}
	f.window(t, 1, "09:00", "10:00")

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:00"), a.SlotStart)
}

func TestRequestAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "10:00")
	p := f.patient(t)
	ctx := context.Background()

	_, err := f.svc.RequestAppointment(ctx, p, BookingRequest{PatientID: p.ID, ProviderID: f.provider.ID, Date: monday})
	assert.ErrorIs(t, err, ErrMissingReason)

	other := f.patient(t)
	_, err = f.svc.RequestAppointment(ctx, p, BookingRequest{PatientID: other.ID, ProviderID: f.provider.ID, Date: monday, Reason: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	a, err := f.svc.RequestAppointment(ctx, f.admin, BookingRequest{PatientID: other.ID, ProviderID: f.provider.ID, Date: monday, Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, other.ID, a.PatientID)

	_, err = f.svc.RequestAppointment(ctx, p, BookingRequest{PatientID: p.ID, ProviderID: f.admin.ID, Date: monday, Reason: "x"})
	assert.ErrorIs(t, err, ErrNotProvider)

	_, err = f.svc.RequestAppointment(ctx, p, BookingRequest{PatientID: p.ID, ProviderID: uuid.New(), Date: monday, Reason: "x"})
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = f.svc.RequestAppointment(ctx, p, BookingRequest{PatientID: p.ID, ProviderID: f.provider.ID, Date: monday.AddDate(0, 0, -7), Reason: "x"})
	assert.ErrorIs(t, err, ErrDateInPast)
}

func TestRequestAppointment_SameDaySkipsStartedSlots(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "10:00")
	f.clock.Set(clock(t, monday, "09:10"))

	preview, err := f.svc.NextSlot(context.Background(), f.provider.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:30"), preview.Start)

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:30"), a.SlotStart)
	assert.Equal(t, clock(t, monday, "10:00"), a.SlotEnd)

	_, err = f.book(f.patient(t), monday)
	assert.ErrorIs(t, err, slot.ErrWindowExhausted)
}

func TestRequestAppointment_SameDayLastSlotStarted(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "10:00")
	f.clock.Set(clock(t, monday, "09:31"))

	_, err := f.book(f.patient(t), monday)
	assert.ErrorIs(t, err, slot.ErrWindowExhausted)
}

func TestRequestAppointment_LocationIsSnapshot(t *testing.T) {
	f := newFixture(t)
	w := f.window(t, 1, "09:00", "10:00")

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	require.NotNil(t, a.SourceWindowID)
	assert.Equal(t, w.ID, *a.SourceWindowID)

	_, err = f.windows.UpdateWindow(context.Background(), f.provider.ID, w.ID, availability.WindowPatch{
		Location: &slot.Location{Address: "New Wing"},
	})
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), f.provider, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "4 Harbour Lane", stored.Location.Address)
}

func TestApproveReject_StateMachine(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	b, err := f.book(f.patient(t), monday)
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, f.provider, a.ID, Approval{})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, a.RequestedAt, *approved.ApprovedAt)

	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{})
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = f.svc.Reject(ctx, f.provider, a.ID, "")
	assert.ErrorIs(t, err, ErrWrongState)

	rejected, err := f.svc.Reject(ctx, f.provider, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.Notes)
	assert.Equal(t, "No reason provided", *rejected.Notes)

	_, err = f.svc.Approve(ctx, f.provider, b.ID, Approval{})
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = f.svc.Reject(ctx, f.provider, b.ID, "again")
	assert.ErrorIs(t, err, ErrWrongState)

	assert.Equal(t, []EventType{EventRequested, EventRequested, EventApproved, EventRejected}, f.events.types())
}

func TestApproveReject_Authorization(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()
	p := f.patient(t)

	a, err := f.book(p, monday)
	require.NoError(t, err)

	otherProvider := identity.Caller{ID: uuid.New(), Role: identity.RoleProvider}
	_, err = f.svc.Approve(ctx, otherProvider, a.ID, Approval{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(ctx, p, a.ID, Approval{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Reject(ctx, f.admin, a.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// A provider id asserted with the wrong role is not the provider.
	_, err = f.svc.Approve(ctx, identity.Caller{ID: f.provider.ID, Role: identity.RolePatient}, a.ID, Approval{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(ctx, f.provider, uuid.New(), Approval{})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestApprove_ConcurrentSucceedsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)

	var mu sync.Mutex
	successes, wrongState := 0, 0
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, err := f.svc.Approve(context.Background(), f.provider, a.ID, Approval{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrWrongState):
				wrongState++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, successes)
	assert.Equal(t, 11, wrongState)
}

func TestApprove_Renegotiated(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	b, err := f.book(f.patient(t), monday)
	require.NoError(t, err)

	clash := clock(t, monday, "09:45")
	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{ApprovedAt: &clash})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	outside := clock(t, monday, "11:45")
	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{ApprovedAt: &outside})
	assert.ErrorIs(t, err, ErrOutsideAvailability)

	later := clock(t, monday, "11:00")
	notes := "moved to late morning"
	moved, err := f.svc.Approve(ctx, f.provider, a.ID, Approval{ApprovedAt: &later, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, later, moved.SlotStart)
	assert.Equal(t, later.Add(30*time.Minute), moved.SlotEnd)
	assert.Equal(t, clock(t, monday, "09:00"), moved.RequestedAt)
	assert.Equal(t, notes, *moved.Notes)

	// Two slots occupied: the next sequential candidate is 10:00.
	c, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "10:00"), c.SlotStart)

	// 10:30 collides with nothing, 11:00 is the moved appointment.
	d, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "10:30"), d.SlotStart)

	// Count reaches 4, candidate 11:00 collides, so the vacated 09:00 gap is used.
	e, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, monday, "09:00"), e.SlotStart)
	assertNoOverlap(t, []*Appointment{moved, b, c, d, e})
}

func TestApprove_ElapsedPendingNeedsNewTime(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)

	f.clock.Set(clock(t, monday, "09:30"))
	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{})
	assert.ErrorIs(t, err, ErrDateInPast)

	stored, err := f.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	later := clock(t, monday, "10:00")
	moved, err := f.svc.Approve(ctx, f.provider, a.ID, Approval{ApprovedAt: &later})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, moved.Status)
	assert.Equal(t, later, moved.SlotStart)
}

func TestApprove_RejectsSubMinuteTime(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)

	odd := clock(t, monday, "10:00").Add(30 * time.Second)
	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{ApprovedAt: &odd})
	assert.ErrorIs(t, err, ErrUnalignedTime)

	stored, err := f.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, clock(t, monday, "09:00"), stored.SlotStart)
}

func TestCompletion_DerivedAndSwept(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()
	p := f.patient(t)

	a, err := f.book(p, monday)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.provider, a.ID, Approval{})
	require.NoError(t, err)

	f.clock.Set(clock(t, monday, "09:15"))
	got, err := f.svc.Get(ctx, p, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)

	f.clock.Set(clock(t, monday, "09:30"))
	got, err = f.svc.Get(ctx, p, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	list, err := f.svc.ListForPatient(ctx, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusCompleted, list[0].Status)

	stored, err := f.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)

	n, err := f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	n, err = f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Contains(t, f.events.types(), EventCompleted)
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	ctx := context.Background()
	p := f.patient(t)

	a, err := f.book(p, monday)
	require.NoError(t, err)

	for _, c := range []identity.Caller{p, f.provider, f.admin} {
		_, err := f.svc.Get(ctx, c, a.ID)
		assert.NoError(t, err)
	}

	_, err = f.svc.Get(ctx, f.patient(t), a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLists_OrderedByRequestedDesc(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "12:00")
	f.window(t, 3, "09:00", "12:00")
	ctx := context.Background()
	p := f.patient(t)

	first, err := f.book(p, monday)
	require.NoError(t, err)
	second, err := f.book(p, monday.AddDate(0, 0, 2))
	require.NoError(t, err)
	third, err := f.book(p, monday)
	require.NoError(t, err)

	list, err := f.svc.ListForPatient(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{second.ID, third.ID, first.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})

	paged, err := f.svc.ListForProvider(ctx, f.provider.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, third.ID, paged[0].ID)

	all, err := f.svc.ListAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestNextSlot_DoesNotReserve(t *testing.T) {
	f := newFixture(t)
	f.window(t, 1, "09:00", "10:00")
	ctx := context.Background()

	preview, err := f.svc.NextSlot(ctx, f.provider.ID, monday)
	require.NoError(t, err)
	again, err := f.svc.NextSlot(ctx, f.provider.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, preview, again)

	a, err := f.book(f.patient(t), monday)
	require.NoError(t, err)
	assert.Equal(t, preview.Start, a.SlotStart)
}
