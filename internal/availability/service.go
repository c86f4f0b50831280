package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telecare-scheduling/internal/slot"
)

var (
	ErrInvalidRange = errors.New("start time must be before end time")
	ErrInvalidDay   = errors.New("day of week must be between 0 and 6")
	ErrNotOwner     = errors.New("window belongs to a different provider")
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "availability").Logger(),
	}
}

// SetWindow creates or replaces the provider's window for dayOfWeek.
// start and end are "HH:MM" wall-clock times in the clinic clock.
func (s *Service) SetWindow(ctx context.Context, providerID uuid.UUID, dayOfWeek int, start, end string, loc *slot.Location) (*Window, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return nil, ErrInvalidDay
	}
	startAt, endAt, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}

	w, err := s.repo.UpsertForDay(ctx, Window{
		ProviderID: providerID,
		DayOfWeek:  dayOfWeek,
		StartTime:  startAt,
		EndTime:    endAt,
		Location:   loc,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert window: %w", err)
	}

	s.log.Info().
		Str("provider_id", providerID.String()).
		Int("day_of_week", dayOfWeek).
		Stringer("start", startAt).
		Stringer("end", endAt).
		Msg("availability window set")

	return w, nil
}

// WindowPatch carries the optional fields of UpdateWindow. Nil fields keep
// their stored value.
type WindowPatch struct {
	StartTime *string
	EndTime   *string
	Location  *slot.Location
}

func (s *Service) UpdateWindow(ctx context.Context, providerID, windowID uuid.UUID, patch WindowPatch) (*Window, error) {
	w, err := s.owned(ctx, providerID, windowID)
	if err != nil {
		return nil, err
	}

	start, end := w.StartTime.String(), w.EndTime.String()
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	startAt, endAt, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}

	w.StartTime = startAt
	w.EndTime = endAt
	if patch.Location != nil {
		w.Location = patch.Location
	}

	updated, err := s.repo.Update(ctx, *w)
	if err != nil {
		return nil, fmt.Errorf("update window: %w", err)
	}
	return updated, nil
}

// DeactivateWindow soft-deletes a window. Deactivating an inactive window is
// a no-op.
func (s *Service) DeactivateWindow(ctx context.Context, providerID, windowID uuid.UUID) error {
	w, err := s.owned(ctx, providerID, windowID)
	if err != nil {
		return err
	}
	if !w.Active {
		return nil
	}

	if err := s.repo.SetActive(ctx, windowID, false); err != nil {
		return fmt.Errorf("deactivate window: %w", err)
	}

	s.log.Info().
		Str("provider_id", providerID.String()).
		Str("window_id", windowID.String()).
		Msg("availability window deactivated")
	return nil
}

func (s *Service) ListActiveWindows(ctx context.Context, providerID uuid.UUID) ([]Window, error) {
	ws, err := s.repo.ListActive(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}
	return ws, nil
}

func (s *Service) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) owned(ctx context.Context, providerID, windowID uuid.UUID) (*Window, error) {
	w, err := s.repo.GetByID(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if w.ProviderID != providerID {
		return nil, ErrNotOwner
	}
	return w, nil
}

func parseRange(start, end string) (slot.ClockTime, slot.ClockTime, error) {
	startAt, err := slot.ParseClock(start)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	endAt, err := slot.ParseClock(end)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if startAt >= endAt {
		return 0, 0, ErrInvalidRange
	}
	return startAt, endAt, nil
}
