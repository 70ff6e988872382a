package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opsdesk.org/internal/directory"
	"opsdesk.org/internal/ids"
)

// Store implements the directory service on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ directory.Service = (*Store)(nil)

// Open connects and applies pool defaults tuned for the API workload.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// Wrap reuses an already-open handle (shared with the auth store).
func Wrap(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// scopeClause appends the visibility restriction derived from the filter.
// ownerCol is the column holding the owning employee id.
func scopeClause(f directory.Filter, ownerCol string, args []any) (string, []any) {
	if f.EmployeeID != "" {
		args = append(args, f.EmployeeID)
		return " and " + ownerCol + " = $1", args
	}
	if f.SectionID != "" {
		args = append(args, f.SectionID)
		return " and section_id = $1", args
	}
	return "", args
}

func (s *Store) ListEmployees(ctx context.Context, f directory.Filter) ([]directory.Employee, error) {
	query := `select id, section_id, full_name, title, hired_at, created_at
		from employees where deleted_at is null`
	clause, args := scopeClause(f, "id", nil)
	rows, err := s.db.QueryContext(ctx, query+clause+` order by full_name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []directory.Employee
	for rows.Next() {
		var e directory.Employee
		var hired sql.NullTime
		if err := rows.Scan(&e.ID, &e.SectionID, &e.FullName, &e.Title, &hired, &e.CreatedAt); err != nil {
			return nil, err
		}
		if hired.Valid {
			e.HiredAt = hired.Time
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, e directory.Employee) (directory.Employee, error) {
	if err := directory.ValidateEmployee(e); err != nil {
		return directory.Employee{}, err
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into employees(id, section_id, full_name, title, hired_at, created_at)
		values ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.SectionID, e.FullName, e.Title, e.HiredAt, e.CreatedAt)
	if err != nil {
		return directory.Employee{}, err
	}
	return e, nil
}

func (s *Store) ListEquipment(ctx context.Context, f directory.Filter) ([]directory.Equipment, error) {
	query := `select id, section_id, coalesce(assigned_to, ''), name, serial, status, created_at
		from equipment where deleted_at is null`
	clause, args := scopeClause(f, "assigned_to", nil)
	rows, err := s.db.QueryContext(ctx, query+clause+` order by name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []directory.Equipment
	for rows.Next() {
		var e directory.Equipment
		if err := rows.Scan(&e.ID, &e.SectionID, &e.AssignedTo, &e.Name, &e.Serial, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) CreateEquipment(ctx context.Context, e directory.Equipment) (directory.Equipment, error) {
	if err := directory.ValidateEquipment(e); err != nil {
		return directory.Equipment{}, err
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Status == "" {
		e.Status = "in_service"
	}
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into equipment(id, section_id, assigned_to, name, serial, status, created_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7)`,
		e.ID, e.SectionID, e.AssignedTo, e.Name, e.Serial, e.Status, e.CreatedAt)
	if err != nil {
		return directory.Equipment{}, err
	}
	return e, nil
}

func (s *Store) ListShifts(ctx context.Context, f directory.Filter) ([]directory.Shift, error) {
	query := `select id, section_id, employee_id, starts_at, ends_at, coalesce(notes, ''), created_at
		from shifts where deleted_at is null`
	clause, args := scopeClause(f, "employee_id", nil)
	rows, err := s.db.QueryContext(ctx, query+clause+` order by starts_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []directory.Shift
	for rows.Next() {
		var sh directory.Shift
		if err := rows.Scan(&sh.ID, &sh.SectionID, &sh.EmployeeID, &sh.StartsAt, &sh.EndsAt, &sh.Notes, &sh.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, sh)
	}
	return res, rows.Err()
}

func (s *Store) CreateShift(ctx context.Context, sh directory.Shift) (directory.Shift, error) {
	if err := directory.ValidateShift(sh); err != nil {
		return directory.Shift{}, err
	}
	if sh.ID == "" {
		sh.ID = ids.New()
	}
	sh.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into shifts(id, section_id, employee_id, starts_at, ends_at, notes, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7)`,
		sh.ID, sh.SectionID, sh.EmployeeID, sh.StartsAt, sh.EndsAt, sh.Notes, sh.CreatedAt)
	if err != nil {
		return directory.Shift{}, err
	}
	return sh, nil
}
