package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/appointment"
	"github.com/hackgods/telecare-scheduling/internal/identity"
	"github.com/hackgods/telecare-scheduling/internal/metrics"
)

var (
	ErrForbidden         = errors.New("only the patient may change report access")
	ErrNoSuchAppointment = errors.New("no appointment links this patient and provider")
	ErrMissingReference  = errors.New("patient_id, provider_id and appointment_id are required")
)

// AppointmentLookup reads ledger records without caller checks.
type AppointmentLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	repo         Repository
	appointments AppointmentLookup
	metrics      *metrics.Metrics
	now          func() time.Time
	log          zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, appointments AppointmentLookup, m *metrics.Metrics, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		appointments: appointments,
		metrics:      m,
		now:          time.Now,
		log:          log.With().Str("component", "access").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grant opens report access for one provider on one appointment. Granting
// again refreshes granted_at and clears any revocation.
func (s *Service) Grant(ctx context.Context, caller identity.Caller, k Key) (*Grant, error) {
	if err := s.authorize(caller, k); err != nil {
		return nil, err
	}
	if err := s.linked(ctx, k); err != nil {
		return nil, err
	}

	now := s.now()
	g, err := s.repo.Upsert(ctx, Grant{
		PatientID:     k.PatientID,
		ProviderID:    k.ProviderID,
		AppointmentID: k.AppointmentID,
		AccessGranted: true,
		GrantedAt:     &now,
	})
	if err != nil {
		return nil, fmt.Errorf("grant access: %w", err)
	}

	s.metrics.AccessChange("grant")
	s.log.Info().
		Str("patient_id", k.PatientID.String()).
		Str("provider_id", k.ProviderID.String()).
		Str("appointment_id", k.AppointmentID.String()).
		Msg("report access granted")
	return g, nil
}

func (s *Service) Revoke(ctx context.Context, caller identity.Caller, k Key) (*Grant, error) {
	if err := s.authorize(caller, k); err != nil {
		return nil, err
	}

	prev, err := s.repo.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load access grant: %w", err)
	}

	now := s.now()
	prev.AccessGranted = false
	prev.RevokedAt = &now
	g, err := s.repo.Upsert(ctx, *prev)
	if err != nil {
		return nil, fmt.Errorf("revoke access: %w", err)
	}

	s.metrics.AccessChange("revoke")
	s.log.Info().
		Str("patient_id", k.PatientID.String()).
		Str("provider_id", k.ProviderID.String()).
		Str("appointment_id", k.AppointmentID.String()).
		Msg("report access revoked")
	return g, nil
}

// Check answers whether the provider may read the patient's reports for the
// appointment. A missing grant is a plain no.
func (s *Service) Check(ctx context.Context, k Key) (bool, error) {
	g, err := s.repo.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check access: %w", err)
	}
	return g.AccessGranted, nil
}

// Status returns the patient's latest grant for an appointment, or a
// not-granted placeholder when none was ever issued.
func (s *Service) Status(ctx context.Context, patientID, appointmentID uuid.UUID) (*Grant, error) {
	grants, err := s.repo.ListForAppointment(ctx, patientID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load access status: %w", err)
	}
	if len(grants) == 0 {
		return &Grant{PatientID: patientID, AppointmentID: appointmentID}, nil
	}
	return &grants[0], nil
}

func (s *Service) authorize(caller identity.Caller, k Key) error {
	if k.PatientID == uuid.Nil || k.ProviderID == uuid.Nil || k.AppointmentID == uuid.Nil {
		return ErrMissingReference
	}
	if caller.Role != identity.RolePatient || caller.ID != k.PatientID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) linked(ctx context.Context, k Key) error {
	appt, err := s.appointments.Lookup(ctx, k.AppointmentID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return ErrNoSuchAppointment
		}
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.PatientID != k.PatientID || appt.ProviderID != k.ProviderID || appt.Status == appointment.StatusRejected {
		return ErrNoSuchAppointment
	}
	return nil
}
