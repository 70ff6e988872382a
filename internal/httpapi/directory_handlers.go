package httpapi

import (
	"errors"
	"net/http"
	"time"

	"opsdesk.org/internal/audit"
	"opsdesk.org/internal/auth"
	"opsdesk.org/internal/directory"
)

// scopeFilter turns the gate's decision into the visibility filter the
// directory stores apply. Own narrows to the caller's employee record,
// Section to the caller's section, Global leaves the filter empty.
func scopeFilter(view auth.PermissionView, scope auth.Scope) directory.Filter {
	switch scope {
	case auth.ScopeOwn:
		return directory.Filter{EmployeeID: view.EmployeeID}
	case auth.ScopeSection:
		return directory.Filter{SectionID: view.SectionID}
	default:
		return directory.Filter{}
	}
}

type listResponse[T any] struct {
	Items []T       `json:"items"`
	Scope string    `json:"scope"`
	AsOf  time.Time `json:"as_of"`
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEmployees(w, r)
	case http.MethodPost:
		a.createEmployee(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEquipment(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEquipment(w, r)
	case http.MethodPost:
		a.createEquipment(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listShifts(w, r)
	case http.MethodPost:
		a.createShift(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listEmployees(w http.ResponseWriter, r *http.Request) {
	r, view, decision, ok := a.guard(w, r, opEmployeesList)
	if !ok {
		return
	}
	items, err := a.dir.ListEmployees(r.Context(), scopeFilter(view, decision.Scope))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[directory.Employee]{
		Items: items,
		Scope: decision.Scope.String(),
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) createEmployee(w http.ResponseWriter, r *http.Request) {
	r, view, _, ok := a.guard(w, r, opEmployeeCreate)
	if !ok {
		return
	}
	var req directory.Employee
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = ""
	if req.SectionID == "" {
		req.SectionID = view.SectionID
	}
	created, err := a.dir.CreateEmployee(r.Context(), req)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.employee.create", map[string]any{
		"employee_id": created.ID,
		"section_id":  created.SectionID,
	})
	w.Header().Set("Location", "/v1/employees/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listEquipment(w http.ResponseWriter, r *http.Request) {
	r, view, decision, ok := a.guard(w, r, opEquipmentList)
	if !ok {
		return
	}
	items, err := a.dir.ListEquipment(r.Context(), scopeFilter(view, decision.Scope))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[directory.Equipment]{
		Items: items,
		Scope: decision.Scope.String(),
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) createEquipment(w http.ResponseWriter, r *http.Request) {
	r, view, _, ok := a.guard(w, r, opEquipmentAdd)
	if !ok {
		return
	}
	var req directory.Equipment
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = ""
	if req.SectionID == "" {
		req.SectionID = view.SectionID
	}
	created, err := a.dir.CreateEquipment(r.Context(), req)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.equipment.create", map[string]any{
		"equipment_id": created.ID,
		"section_id":   created.SectionID,
	})
	w.Header().Set("Location", "/v1/equipment/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listShifts(w http.ResponseWriter, r *http.Request) {
	r, view, decision, ok := a.guard(w, r, opSchedulesList)
	if !ok {
		return
	}
	items, err := a.dir.ListShifts(r.Context(), scopeFilter(view, decision.Scope))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[directory.Shift]{
		Items: items,
		Scope: decision.Scope.String(),
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) createShift(w http.ResponseWriter, r *http.Request) {
	r, view, _, ok := a.guard(w, r, opScheduleCreate)
	if !ok {
		return
	}
	var req directory.Shift
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = ""
	if req.SectionID == "" {
		req.SectionID = view.SectionID
	}
	created, err := a.dir.CreateShift(r.Context(), req)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.schedule.create", map[string]any{
		"shift_id":    created.ID,
		"employee_id": created.EmployeeID,
		"section_id":  created.SectionID,
	})
	w.Header().Set("Location", "/v1/schedules/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
