package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type occupancyKey struct {
	provider uuid.UUID
	date     string
}

// MemoryRepository keeps appointments in process. The overlap rule is checked
// under the same mutex as the write, mirroring the store constraint.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*Appointment
	occupancy map[occupancyKey][]uuid.UUID
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[uuid.UUID]*Appointment),
		occupancy: make(map[occupancyKey][]uuid.UUID),
		now:       time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overlapsLocked(a.ProviderID, a.ID, a.SlotStart, a.SlotEnd) {
		return nil, ErrSlotUnavailable
	}

	now := r.now()
	a.Status = StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now
	r.byID[a.ID] = &a

	key := occupancyKey{provider: a.ProviderID, date: a.SlotDate}
	r.occupancy[key] = append(r.occupancy[key], a.ID)

	out := a
	return &out, nil
}

func (r *MemoryRepository) overlapsLocked(providerID, self uuid.UUID, start, end time.Time) bool {
	for _, other := range r.byID {
		if other.ID == self || other.ProviderID != providerID || !other.Status.Occupies() {
			continue
		}
		if start.Before(other.SlotEnd) && other.SlotStart.Before(end) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) ListByProviderOnDate(_ context.Context, providerID uuid.UUID, date string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, id := range r.occupancy[occupancyKey{provider: providerID, date: date}] {
		result = append(result, *r.byID[id])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotStart.Before(result[j].SlotStart) })
	return result, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.PatientID == patientID }, byRequestedDesc, limit, offset), nil
}

func (r *MemoryRepository) ListByProvider(_ context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.ProviderID == providerID }, byRequestedDesc, limit, offset), nil
}

func (r *MemoryRepository) ListAll(_ context.Context, limit, offset int) ([]Appointment, error) {
	return r.list(func(*Appointment) bool { return true }, byCreatedDesc, limit, offset), nil
}

func byRequestedDesc(a, b Appointment) bool { return a.RequestedAt.After(b.RequestedAt) }
func byCreatedDesc(a, b Appointment) bool   { return a.CreatedAt.After(b.CreatedAt) }

func (r *MemoryRepository) list(match func(*Appointment) bool, less func(a, b Appointment) bool, limit, offset int) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Appointment
	for _, a := range r.byID {
		if match(a) {
			all = append(all, *a)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (r *MemoryRepository) Transition(_ context.Context, id uuid.UUID, from Status, c Change) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrWrongState
	}

	if c.Reslot != nil {
		if c.To.Occupies() && r.overlapsLocked(a.ProviderID, a.ID, c.Reslot.Start, c.Reslot.End) {
			return nil, ErrSlotUnavailable
		}
		r.moveLocked(a, c.Reslot.Date)
		a.SlotStart = c.Reslot.Start
		a.SlotEnd = c.Reslot.End
	}

	a.Status = c.To
	if c.ApprovedAt != nil {
		t := *c.ApprovedAt
		a.ApprovedAt = &t
	}
	if c.Notes != nil {
		n := *c.Notes
		a.Notes = &n
	}
	a.UpdatedAt = r.now()

	out := *a
	return &out, nil
}

func (r *MemoryRepository) moveLocked(a *Appointment, date string) {
	if a.SlotDate == date {
		return
	}
	oldKey := occupancyKey{provider: a.ProviderID, date: a.SlotDate}
	ids := r.occupancy[oldKey]
	for i, id := range ids {
		if id == a.ID {
			r.occupancy[oldKey] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	newKey := occupancyKey{provider: a.ProviderID, date: date}
	r.occupancy[newKey] = append(r.occupancy[newKey], a.ID)
	a.SlotDate = date
}

func (r *MemoryRepository) FindElapsedApproved(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.byID {
		if a.Elapsed(now) {
			result = append(result, *a)
		}
	}
	return result, nil
}
