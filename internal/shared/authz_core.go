package shared

// Console permissions checked by route guards.
const (
	PermUsersView = "users.view"

	PermRolesView   = "roles.view"
	PermRolesEdit   = "roles.edit"
	PermRolesAssign = "roles.assign"

	PermCalendarView = "calendar.view"
	PermCalendarEdit = "calendar.edit"
)

// CoreScopes lists every permission the console itself enforces.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermRolesView,
		PermRolesEdit,
		PermRolesAssign,
		PermCalendarView,
		PermCalendarEdit,
	}
}
