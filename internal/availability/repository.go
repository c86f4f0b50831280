package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrWindowNotFound = errors.New("availability window not found")
)

// Repository persists windows. There is exactly one row per provider and
// weekday; UpsertForDay replaces that row in place.
type Repository interface {
	UpsertForDay(ctx context.Context, w Window) (*Window, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	Update(ctx context.Context, w Window) (*Window, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListActive(ctx context.Context, providerID uuid.UUID) ([]Window, error)
}
