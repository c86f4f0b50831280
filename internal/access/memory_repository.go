package access

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	grants map[Key]Grant
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{grants: make(map[Key]Grant), now: time.Now}
}

func (r *MemoryRepository) Upsert(_ context.Context, g Grant) (*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if prev, ok := r.grants[g.Key()]; ok {
		g.CreatedAt = prev.CreatedAt
		if g.GrantedAt == nil {
			g.GrantedAt = prev.GrantedAt
		}
	} else {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	r.grants[g.Key()] = g

	out := g
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, k Key) (*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grants[k]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return &g, nil
}

func (r *MemoryRepository) ListForAppointment(_ context.Context, patientID, appointmentID uuid.UUID) ([]Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Grant
	for k, g := range r.grants {
		if k.PatientID == patientID && k.AppointmentID == appointmentID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}
