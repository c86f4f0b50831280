package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/identity"
)

type stubLedger map[uuid.UUID]appointment.Appointment

func (s stubLedger) Lookup(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := s[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

type fixture struct {
	svc      *Service
	ledger   stubLedger
	patient  identity.Caller
	provider uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		ledger:   stubLedger{},
		patient:  identity.Caller{ID: uuid.New(), Role: identity.RolePatient},
		provider: uuid.New(),
	}
	f.svc = NewService(NewMemoryRepository(), f.ledger, nil, zerolog.Nop())
	return f
}

func (f *fixture) appointment(status appointment.Status) Key {
	id := uuid.New()
	f.ledger[id] = appointment.Appointment{ID: id, PatientID: f.patient.ID, ProviderID: f.provider, Status: status}
	return Key{PatientID: f.patient.ID, ProviderID: f.provider, AppointmentID: id}
}

func TestGrant_StampsInjectedClock(t *testing.T) {
	granted := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	revoked := granted.Add(2 * time.Hour)
	now := granted
	clock := func() time.Time { return now }

	repo := NewMemoryRepository()
	repo.now = clock
	f := newFixture()
	f.svc = NewService(repo, f.ledger, nil, zerolog.Nop(), WithClock(clock))
	ctx := context.Background()
	k := f.appointment(appointment.StatusApproved)

	g, err := f.svc.Grant(ctx, f.patient, k)
	require.NoError(t, err)
	assert.Equal(t, granted, *g.GrantedAt)
	assert.Equal(t, granted, g.CreatedAt)
	assert.Equal(t, granted, g.UpdatedAt)

	now = revoked
	r, err := f.svc.Revoke(ctx, f.patient, k)
	require.NoError(t, err)
	assert.Equal(t, revoked, *r.RevokedAt)
	assert.Equal(t, granted, r.CreatedAt)
	assert.Equal(t, revoked, r.UpdatedAt)
	assert.Equal(t, granted, *r.GrantedAt)
}

func TestGrantCheckRevoke(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	k := f.appointment(appointment.StatusApproved)

	ok, err := f.svc.Check(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	g, err := f.svc.Grant(ctx, f.patient, k)
	require.NoError(t, err)
	assert.True(t, g.AccessGranted)
	require.NotNil(t, g.GrantedAt)

	ok, err = f.svc.Check(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := f.svc.Revoke(ctx, f.patient, k)
	require.NoError(t, err)
	assert.False(t, r.AccessGranted)
	assert.NotNil(t, r.RevokedAt)
	assert.Equal(t, g.GrantedAt, r.GrantedAt)

	ok, err = f.svc.Check(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := f.svc.Grant(ctx, f.patient, k)
	require.NoError(t, err)
	assert.True(t, again.AccessGranted)
	assert.Nil(t, again.RevokedAt)
	assert.Equal(t, g.CreatedAt, again.CreatedAt)
}

func TestGrant_ScopedToOneAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	x := f.appointment(appointment.StatusApproved)
	y := f.appointment(appointment.StatusApproved)

	_, err := f.svc.Grant(ctx, f.patient, x)
	require.NoError(t, err)

	ok, err := f.svc.Check(ctx, y)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrant_RequiresLinkedAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, status := range []appointment.Status{appointment.StatusPending, appointment.StatusApproved, appointment.StatusCompleted} {
		_, err := f.svc.Grant(ctx, f.patient, f.appointment(status))
		assert.NoError(t, err, status)
	}

	_, err := f.svc.Grant(ctx, f.patient, f.appointment(appointment.StatusRejected))
	assert.ErrorIs(t, err, ErrNoSuchAppointment)

	k := f.appointment(appointment.StatusApproved)
	k.ProviderID = uuid.New()
	_, err = f.svc.Grant(ctx, f.patient, k)
	assert.ErrorIs(t, err, ErrNoSuchAppointment)

	_, err = f.svc.Grant(ctx, f.patient, Key{PatientID: f.patient.ID, ProviderID: f.provider, AppointmentID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoSuchAppointment)
}

func TestGrant_OnlyThePatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	k := f.appointment(appointment.StatusApproved)

	_, err := f.svc.Grant(ctx, identity.Caller{ID: f.provider, Role: identity.RoleProvider}, k)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Grant(ctx, identity.Caller{ID: uuid.New(), Role: identity.RoleAdmin}, k)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Grant(ctx, f.patient, Key{PatientID: f.patient.ID})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestRevoke_WithoutGrant(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Revoke(context.Background(), f.patient, f.appointment(appointment.StatusApproved))
	assert.ErrorIs(t, err, ErrGrantNotFound)
}

func TestStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	k := f.appointment(appointment.StatusApproved)

	st, err := f.svc.Status(ctx, f.patient.ID, k.AppointmentID)
	require.NoError(t, err)
	assert.False(t, st.AccessGranted)

	_, err = f.svc.Grant(ctx, f.patient, k)
	require.NoError(t, err)

	st, err = f.svc.Status(ctx, f.patient.ID, k.AppointmentID)
	require.NoError(t, err)
	assert.True(t, st.AccessGranted)
	assert.Equal(t, f.provider, st.ProviderID)
}
