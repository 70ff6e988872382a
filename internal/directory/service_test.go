package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedDirectory(t *testing.T) *InMemory {
	t.Helper()
	dir := NewInMemory()
	ctx := context.Background()

	for _, e := range []Employee{
		{ID: "emp-1", SectionID: "sec-a", FullName: "Ada Byron", Title: "Engineer"},
		{ID: "emp-2", SectionID: "sec-a", FullName: "Grace Hopper", Title: "Engineer"},
		{ID: "emp-3", SectionID: "sec-b", FullName: "Alan Turing", Title: "Analyst"},
	} {
		if _, err := dir.CreateEmployee(ctx, e); err != nil {
			t.Fatalf("CreateEmployee: %v", err)
		}
	}
	for _, eq := range []Equipment{
		{ID: "eq-1", SectionID: "sec-a", AssignedTo: "emp-1", Name: "Laptop", Serial: "L-1"},
		{ID: "eq-2", SectionID: "sec-b", AssignedTo: "emp-3", Name: "Forklift", Serial: "F-9"},
	} {
		if _, err := dir.CreateEquipment(ctx, eq); err != nil {
			t.Fatalf("CreateEquipment: %v", err)
		}
	}
	return dir
}

func TestListEmployeesScopeFiltering(t *testing.T) {
	dir := seedDirectory(t)
	ctx := context.Background()

	all, err := dir.ListEmployees(ctx, Filter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("global filter: %v, %d rows", err, len(all))
	}

	section, err := dir.ListEmployees(ctx, Filter{SectionID: "sec-a"})
	if err != nil || len(section) != 2 {
		t.Fatalf("section filter: %v, %d rows", err, len(section))
	}

	own, err := dir.ListEmployees(ctx, Filter{EmployeeID: "emp-3"})
	if err != nil || len(own) != 1 || own[0].ID != "emp-3" {
		t.Fatalf("own filter: %v, %+v", err, own)
	}
}

func TestOwnFilterTrumpsSection(t *testing.T) {
	dir := seedDirectory(t)

	// Both fields set: ownership wins, the section is ignored.
	rows, err := dir.ListEquipment(context.Background(), Filter{EmployeeID: "emp-1", SectionID: "sec-b"})
	if err != nil || len(rows) != 1 || rows[0].ID != "eq-1" {
		t.Fatalf("own filter should win: %v, %+v", err, rows)
	}
}

func TestCreateValidation(t *testing.T) {
	dir := NewInMemory()
	ctx := context.Background()

	if _, err := dir.CreateEmployee(ctx, Employee{FullName: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if _, err := dir.CreateShift(ctx, Shift{
		SectionID: "sec-a", EmployeeID: "emp-1",
		StartsAt: start, EndsAt: start.Add(-time.Hour),
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("shift must end after it starts, got %v", err)
	}

	created, err := dir.CreateShift(ctx, Shift{
		SectionID: "sec-a", EmployeeID: "emp-1",
		StartsAt: start, EndsAt: start.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateShift: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
}
