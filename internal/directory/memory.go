package directory

import (
	"context"
	"sync"
	"time"

	"opsdesk.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety. Used by
// tests and by dev mode when no database is configured.
type InMemory struct {
	mu        sync.RWMutex
	employees []Employee
	equipment []Equipment
	shifts    []Shift
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) ListEmployees(_ context.Context, f Filter) ([]Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Employee
	for _, e := range s.employees {
		if f.Matches(e.SectionID, e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) CreateEmployee(_ context.Context, e Employee) (Employee, error) {
	if err := ValidateEmployee(e); err != nil {
		return Employee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	e.CreatedAt = time.Now().UTC()
	s.employees = append(s.employees, e)
	return e, nil
}

func (s *InMemory) ListEquipment(_ context.Context, f Filter) ([]Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Equipment
	for _, e := range s.equipment {
		if f.Matches(e.SectionID, e.AssignedTo) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) CreateEquipment(_ context.Context, e Equipment) (Equipment, error) {
	if err := ValidateEquipment(e); err != nil {
		return Equipment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Status == "" {
		e.Status = "in_service"
	}
	e.CreatedAt = time.Now().UTC()
	s.equipment = append(s.equipment, e)
	return e, nil
}

func (s *InMemory) ListShifts(_ context.Context, f Filter) ([]Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Shift
	for _, sh := range s.shifts {
		if f.Matches(sh.SectionID, sh.EmployeeID) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *InMemory) CreateShift(_ context.Context, sh Shift) (Shift, error) {
	if err := ValidateShift(sh); err != nil {
		return Shift{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == "" {
		sh.ID = ids.New()
	}
	sh.CreatedAt = time.Now().UTC()
	s.shifts = append(s.shifts, sh)
	return sh, nil
}
