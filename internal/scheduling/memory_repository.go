package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with in-process storage. It is
// used by tests and local development; the mutex gives it the same atomic
// conditional-transition semantics the Postgres repository gets from
// status-guarded UPDATEs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *InMemoryRepository) CreateAvailable(_ context.Context, tenantID uuid.UUID, slot SlotCandidate, priceCents int64) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.TenantID != tenantID || a.Status == StatusCanceled {
			continue
		}
		if a.StartAt.Before(slot.EndAt) && a.EndAt.After(slot.StartAt) {
			return nil, false, nil
		}
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:         uuid.New(),
		TenantID:   tenantID,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
		Status:     StatusAvailable,
		PriceCents: priceCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.appts[appt.ID] = appt
	return cloned(appt), true, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(tenantID, id)
}

func (r *InMemoryRepository) getLocked(tenantID, id uuid.UUID) (*Appointment, error) {
	appt, ok := r.appts[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cloned(appt), nil
}

func (r *InMemoryRepository) Book(_ context.Context, tenantID, id, patientID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if appt.Status != StatusAvailable {
		return nil, ErrSlotUnavailable
	}
	pid := patientID
	appt.Status = StatusBooked
	appt.PatientID = &pid
	appt.UpdatedAt = time.Now().UTC()
	return cloned(appt), nil
}

func (r *InMemoryRepository) Cancel(_ context.Context, tenantID, id uuid.UUID, owner *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if owner != nil {
		if appt.Status == StatusAvailable {
			return nil, ErrForbidden
		}
		if appt.Status == StatusBooked && (appt.PatientID == nil || *appt.PatientID != *owner) {
			return nil, ErrForbidden
		}
	}
	if !CanTransition(appt.Status, StatusCanceled) {
		return nil, ErrInvalidTransition
	}
	appt.Status = StatusCanceled
	appt.UpdatedAt = time.Now().UTC()
	return cloned(appt), nil
}

func (r *InMemoryRepository) Advance(_ context.Context, tenantID, id uuid.UUID, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok || appt.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if appt.Status != StatusBooked {
		return nil, ErrInvalidTransition
	}
	appt.Status = to
	appt.UpdatedAt = time.Now().UTC()
	return cloned(appt), nil
}

func (r *InMemoryRepository) Range(_ context.Context, tenantID uuid.UUID, from, to time.Time, patientID *uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(a *Appointment) bool {
		if a.TenantID != tenantID {
			return false
		}
		if a.StartAt.Before(from) || a.StartAt.After(to) {
			return false
		}
		if patientID != nil && (a.PatientID == nil || *a.PatientID != *patientID) {
			return false
		}
		return true
	}), nil
}

func (r *InMemoryRepository) ListAvailable(_ context.Context, tenantID uuid.UUID, now time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(a *Appointment) bool {
		return a.TenantID == tenantID && a.Status == StatusAvailable && a.StartAt.After(now)
	}), nil
}

func (r *InMemoryRepository) ListByPatient(_ context.Context, tenantID, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(a *Appointment) bool {
		return a.TenantID == tenantID && a.Status != StatusAvailable &&
			a.PatientID != nil && *a.PatientID == patientID
	}), nil
}

func (r *InMemoryRepository) collect(keep func(*Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range r.appts {
		if keep(a) {
			out = append(out, *cloned(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func cloned(a *Appointment) *Appointment {
	cp := *a
	if a.PatientID != nil {
		pid := *a.PatientID
		cp.PatientID = &pid
	}
	return &cp
}
