package shared

import "context"

// Auditor appends security-relevant events to the audit trail. Record never
// reports failure to its caller.
type Auditor interface {
	Record(ctx context.Context, operation, entity, description string, changes any)
}

// Operation tags in use. The set is open; any non-empty tag is accepted.
const (
	OpAccessDenied        = "ACCESS_DENIED"
	OpLoginSuccess        = "LOGIN_SUCCESS"
	OpLoginFailed         = "LOGIN_FAILED"
	OpLogout              = "LOGOUT"
	OpCreate              = "CREATE"
	OpUpdate              = "UPDATE"
	OpDelete              = "DELETE"
	OpError               = "ERROR"
	OpErrorLog            = "ERROR_LOG"
	OpLockdownActivated   = "LOCKDOWN_ACTIVATED"
	OpLockdownDeactivated = "LOCKDOWN_DEACTIVATED"
	OpAdminSearch         = "ADMIN_SEARCH"
	OpExportLogs          = "EXPORT_LOGS"
)

// Entity tags in use.
const (
	EntityUser      = "User"
	EntityVehicle   = "Vehicle"
	EntityEquipment = "Equipment"
	EntitySystem    = "System"
	EntityLog       = "Log"
	EntityChat      = "Chat"
	EntityDashboard = "Dashboard"
)

// NopAuditor discards every event.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, string, string, string, any) {}
