package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dayKey struct {
	provider uuid.UUID
	day      int
}

type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Window
	byDay map[dayKey]uuid.UUID
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]*Window),
		byDay: make(map[dayKey]uuid.UUID),
		now:   time.Now,
	}
}

func (r *MemoryRepository) UpsertForDay(_ context.Context, w Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := dayKey{provider: w.ProviderID, day: w.DayOfWeek}

	if id, ok := r.byDay[key]; ok {
		existing := r.byID[id]
		existing.StartTime = w.StartTime
		existing.EndTime = w.EndTime
		existing.Active = true
		if w.Location != nil {
			existing.Location = w.Location
		}
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	w.ID = uuid.New()
	w.Active = true
	w.CreatedAt = now
	w.UpdatedAt = now
	r.byID[w.ID] = &w
	r.byDay[key] = w.ID

	out := w
	return &out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	out := *w
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, w Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[w.ID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	existing.StartTime = w.StartTime
	existing.EndTime = w.EndTime
	existing.Location = w.Location
	existing.UpdatedAt = r.now()

	out := *existing
	return &out, nil
}

func (r *MemoryRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[id]
	if !ok {
		return ErrWindowNotFound
	}
	w.Active = active
	w.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) ListActive(_ context.Context, providerID uuid.UUID) ([]Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Window
	for _, w := range r.byID {
		if w.ProviderID == providerID && w.Active {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DayOfWeek < result[j].DayOfWeek })
	return result, nil
}
