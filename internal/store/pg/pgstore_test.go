package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"opsdesk.org/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Wrap(db), mock
}

func TestListEmployeesAppliesSectionScope(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	cols := []string{"id", "section_id", "full_name", "title", "hired_at", "created_at"}
	mock.ExpectQuery("from employees where deleted_at is null and section_id =").
		WithArgs("sec-a").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("emp-1", "sec-a", "Ada Byron", "Engineer", now, now))

	rows, err := store.ListEmployees(context.Background(), directory.Filter{SectionID: "sec-a"})
	if err != nil {
		t.Fatalf("ListEmployees: %v", err)
	}
	if len(rows) != 1 || rows[0].SectionID != "sec-a" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListEquipmentOwnScopeUsesAssignee(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{"id", "section_id", "assigned_to", "name", "serial", "status", "created_at"}
	mock.ExpectQuery("from equipment where deleted_at is null and assigned_to =").
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("eq-1", "sec-a", "emp-1", "Laptop", "L-1", "in_service", now))

	rows, err := store.ListEquipment(context.Background(), directory.Filter{EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("ListEquipment: %v", err)
	}
	if len(rows) != 1 || rows[0].AssignedTo != "emp-1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestCreateShiftInsert(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into shifts").
		WithArgs(sqlmock.AnyArg(), "sec-a", "emp-1", start, start.Add(8*time.Hour), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sh, err := store.CreateShift(context.Background(), directory.Shift{
		SectionID:  "sec-a",
		EmployeeID: "emp-1",
		StartsAt:   start,
		EndsAt:     start.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateShift: %v", err)
	}
	if sh.ID == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
