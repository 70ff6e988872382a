package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// The directory holds the business records behind the protected endpoints.
// The auth core only sees it through the Filter it derives from a caller's
// resolved scope; everything else about persistence stays down here.

// Employee is a person record owned by a section.
type Employee struct {
	ID        string    `json:"id"`
	SectionID string    `json:"section_id"`
	FullName  string    `json:"full_name"`
	Title     string    `json:"title"`
	HiredAt   time.Time `json:"hired_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Equipment is a tracked asset, optionally assigned to an employee.
type Equipment struct {
	ID         string    `json:"id"`
	SectionID  string    `json:"section_id"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Name       string    `json:"name"`
	Serial     string    `json:"serial"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Shift is one scheduled work block for an employee.
type Shift struct {
	ID         string    `json:"id"`
	SectionID  string    `json:"section_id"`
	EmployeeID string    `json:"employee_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	ErrNotFound     = errors.New("directory: not found")
	ErrInvalidInput = errors.New("directory: invalid input")
)

// Filter restricts a query to the caller's visibility. EmployeeID set means
// own records only; otherwise SectionID set means one section; neither set
// means global. The gate decides which fields to fill, the stores only obey.
type Filter struct {
	EmployeeID string
	SectionID  string
}

// Matches reports whether a record owned by (sectionID, employeeID) is
// visible under the filter.
func (f Filter) Matches(sectionID, employeeID string) bool {
	if f.EmployeeID != "" {
		return f.EmployeeID == employeeID
	}
	if f.SectionID != "" {
		return f.SectionID == sectionID
	}
	return true
}

// Service defines the directory operations consumed by the HTTP layer.
type Service interface {
	ListEmployees(ctx context.Context, f Filter) ([]Employee, error)
	CreateEmployee(ctx context.Context, e Employee) (Employee, error)

	ListEquipment(ctx context.Context, f Filter) ([]Equipment, error)
	CreateEquipment(ctx context.Context, e Equipment) (Equipment, error)

	ListShifts(ctx context.Context, f Filter) ([]Shift, error)
	CreateShift(ctx context.Context, s Shift) (Shift, error)
}

func ValidateEmployee(e Employee) error {
	if strings.TrimSpace(e.FullName) == "" || strings.TrimSpace(e.SectionID) == "" {
		return ErrInvalidInput
	}
	return nil
}

func ValidateEquipment(e Equipment) error {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.SectionID) == "" {
		return ErrInvalidInput
	}
	return nil
}

func ValidateShift(s Shift) error {
	if strings.TrimSpace(s.EmployeeID) == "" || strings.TrimSpace(s.SectionID) == "" {
		return ErrInvalidInput
	}
	if !s.EndsAt.After(s.StartsAt) {
		return ErrInvalidInput
	}
	return nil
}
