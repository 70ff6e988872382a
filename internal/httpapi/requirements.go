package httpapi

import "opsdesk.org/internal/auth"

// Operation identifiers. Every handler gates itself through one of these;
// an operation missing from the table is denied, so adding a handler
// without declaring its access contract fails closed.
const (
	opAuthLogin      = "auth.login"
	opAuthRefresh    = "auth.refresh"
	opAuthLogout     = "auth.logout"
	opChangePassword = "auth.change_password"

	opEmployeesList  = "employees.list"
	opEmployeeCreate = "employees.create"
	opEquipmentList  = "equipment.list"
	opEquipmentAdd   = "equipment.create"
	opSchedulesList  = "schedules.list"
	opScheduleCreate = "schedules.create"
)

func defaultRequirements() *auth.Registry {
	reg := auth.NewRegistry()

	// Session entry points carry no bearer token yet.
	reg.Register(opAuthLogin, auth.Requirement{SkipAuth: true})
	reg.Register(opAuthRefresh, auth.Requirement{SkipAuth: true})
	reg.Register(opAuthLogout, auth.Requirement{SkipAuth: true})

	// Password change is the one authenticated operation a caller with an
	// expired password is still allowed to perform.
	reg.Register(opChangePassword, auth.Requirement{AllowExpiredPassword: true})

	reg.Register(opEmployeesList, auth.Requirement{Resource: "employees"})
	reg.Register(opEmployeeCreate, auth.Requirement{Resource: "employees", NeedCreate: true})
	reg.Register(opEquipmentList, auth.Requirement{Resource: "equipment"})
	reg.Register(opEquipmentAdd, auth.Requirement{Resource: "equipment", NeedCreate: true})
	reg.Register(opSchedulesList, auth.Requirement{Resource: "schedules"})
	reg.Register(opScheduleCreate, auth.Requirement{Resource: "schedules", NeedCreate: true})

	return reg
}

// DefaultRequirements exposes the standard operation table for cmd/api.
func DefaultRequirements() *auth.Registry { return defaultRequirements() }
